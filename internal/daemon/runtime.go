// SPDX-License-Identifier: MIT

// Package daemon wires the engine, its HTTP surface and the config reload
// loop into a long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/streamgrab/internal/api"
	"github.com/ManuGH/streamgrab/internal/api/middleware"
	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/config"
	"github.com/ManuGH/streamgrab/internal/engine"
	"github.com/ManuGH/streamgrab/internal/fetch"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/sink"
	"github.com/ManuGH/streamgrab/internal/telemetry"
)

const serviceName = "streamgrab"

// FetchOptions maps the fetch section onto client options.
func FetchOptions(cfg config.FetchConfig) fetch.Options {
	rules := make([]fetch.HeaderRule, 0, len(cfg.HeaderRules))
	for _, r := range cfg.HeaderRules {
		rules = append(rules, fetch.HeaderRule{
			HostSuffix: r.HostSuffix,
			Referer:    r.Referer,
			Origin:     r.Origin,
			Headers:    r.Headers,
		})
	}
	return fetch.Options{
		UserAgent:   cfg.UserAgent,
		RatePerHost: cfg.RatePerHost,
		Burst:       cfg.Burst,
		HeaderRules: rules,
	}
}

// EngineLimits maps the engine section onto coordinator limits.
func EngineLimits(cfg config.EngineConfig) engine.Limits {
	return engine.Limits{
		SegmentCap:      cfg.SegmentCap,
		MaxVariantDepth: cfg.MaxVariantDepth,
		SizeSamples:     cfg.SizeSamples,
		EstimateSize:    cfg.EstimateSize,
	}
}

// NewEngine builds a coordinator that fetches over HTTP and saves into
// cfg.OutputDir. b may be nil.
func NewEngine(cfg config.AppConfig, b bus.Bus) (*engine.Coordinator, error) {
	out, err := sink.NewFileSink(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output sink: %w", err)
	}
	return engine.New(engine.Options{
		Fetcher: fetch.NewClient(FetchOptions(cfg.Fetch)),
		Sink:    out,
		Bus:     b,
		Rules:   cfg.Filter,
		Limits:  EngineLimits(cfg.Engine),
	})
}

// Runtime is the set of components a serving process owns.
type Runtime struct {
	Bus         *bus.MemoryBus
	Coordinator *engine.Coordinator
	API         *api.Server
	Telemetry   *telemetry.Provider
}

// NewRuntime builds every component for cfg. Close releases them.
func NewRuntime(ctx context.Context, cfg config.AppConfig) (*Runtime, error) {
	logger := xglog.WithComponent("daemon")

	service := cfg.LogService
	if service == "" {
		service = serviceName
	}
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    service,
		ServiceVersion: cfg.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Str("event", "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
		tp = nil
	}

	rt := &Runtime{Bus: bus.NewMemoryBus(), Telemetry: tp}
	rt.Coordinator, err = NewEngine(cfg, rt.Bus)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}

	stack := middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		RateLimitPerMinute:    cfg.API.RateLimitPerMinute,
	}
	if tp != nil && cfg.Telemetry.Enabled {
		stack.TracingService = service
	}
	rt.API, err = api.New(api.Config{
		Engine:  rt.Coordinator,
		Bus:     rt.Bus,
		Version: cfg.Version,
		Stack:   stack,
		Metrics: promhttp.Handler(),
	})
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}
	return rt, nil
}

// Apply pushes the reloadable parts of cfg into the running components.
// Fetch settings and the listen address need a restart.
func (r *Runtime) Apply(cfg config.AppConfig) {
	r.Coordinator.SetRules(cfg.Filter)
	r.Coordinator.SetLimits(EngineLimits(cfg.Engine))
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
}

// Close stops request work, then downloads, then flushes traces.
func (r *Runtime) Close(ctx context.Context) error {
	if r.API != nil {
		r.API.Close()
	}
	if r.Coordinator != nil {
		r.Coordinator.Close()
	}
	if r.Telemetry != nil {
		if err := r.Telemetry.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry shutdown: %w", err)
		}
	}
	return nil
}
