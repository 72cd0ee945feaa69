// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "outputDir: "+dir+"\nengine:\n  segmentCap: 100\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	updates := make(chan AppConfig, 1)
	h.RegisterListener(updates)

	writeConfig(t, dir, "outputDir: "+dir+"\nengine:\n  segmentCap: 200\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 200, h.Get().Engine.SegmentCap)

	select {
	case got := <-updates:
		assert.Equal(t, 200, got.Engine.SegmentCap)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "outputDir: "+dir+"\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	writeConfig(t, dir, "outputDir: "+dir+"\nengine:\n  segmentCap: -1\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, DefaultSegmentCap, h.Get().Engine.SegmentCap)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "outputDir: "+dir+"\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	blocked := make(chan AppConfig)
	h.RegisterListener(blocked)
	require.NoError(t, h.Reload(context.Background()))
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "outputDir: "+dir+"\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	h.debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("outputDir: "+dir+"\nlogLevel: debug\n"), 0o600))
	require.Eventually(t, func() bool { return h.Get().LogLevel == "debug" }, 5*time.Second, 10*time.Millisecond)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("junk"), 0o600))
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "dev"))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
