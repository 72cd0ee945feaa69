// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamgrab/internal/classify"
	"github.com/ManuGH/streamgrab/internal/config"
	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/fetch"
)

func TestFetchOptions_MapsHeaderRules(t *testing.T) {
	got := FetchOptions(config.FetchConfig{
		UserAgent:   "ua/1",
		RatePerHost: 2.5,
		Burst:       3,
		HeaderRules: []config.HeaderRuleConfig{{
			HostSuffix: "cdn.example",
			Referer:    "https://example.com/",
			Headers:    map[string]string{"X-Token": "t"},
		}},
	})
	want := fetch.Options{
		UserAgent:   "ua/1",
		RatePerHost: 2.5,
		Burst:       3,
		HeaderRules: []fetch.HeaderRule{{
			HostSuffix: "cdn.example",
			Referer:    "https://example.com/",
			Headers:    map[string]string{"X-Token": "t"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineLimits(t *testing.T) {
	got := EngineLimits(config.EngineConfig{SegmentCap: 10, MaxVariantDepth: 2, SizeSamples: 1, EstimateSize: true})
	assert.Equal(t, engine.Limits{SegmentCap: 10, MaxVariantDepth: 2, SizeSamples: 1, EstimateSize: true}, got)
}

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.OutputDir = t.TempDir()
	cfg.Version = "test"
	return cfg
}

func TestNewRuntime_ServesAPI(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, testAppConfig(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	for _, path := range []string{"/healthz", "/metrics", "/api/v1/streams"} {
		w := httptest.NewRecorder()
		rt.API.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRuntime_ApplySwapsRulesAndLimits(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig(t)
	rt, err := NewRuntime(ctx, cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	cfg.Engine.SegmentCap = 42
	cfg.Filter = classify.Rules{DenyTokens: []string{"promo"}}
	rt.Apply(cfg)

	assert.Equal(t, 42, rt.Coordinator.Limits().SegmentCap)
}

func TestNewEngine_RejectsUnusableOutputDir(t *testing.T) {
	cfg := testAppConfig(t)
	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.OutputDir = filepath.Join(file, "sub")
	_, err := NewEngine(cfg, nil)
	require.Error(t, err)
}
