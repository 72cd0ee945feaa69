// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/streamgrab/internal/telemetry"
	"github.com/ManuGH/streamgrab/internal/validate"
)

// Validate reports every invalid setting at once. OutputDir is created when
// missing.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)
	v.ListenAddr("listenAddr", cfg.ListenAddr)
	v.Directory("outputDir", cfg.OutputDir, false)

	if cfg.Fetch.RatePerHost < 0 {
		v.AddError("fetch.ratePerHost", "cannot be negative", cfg.Fetch.RatePerHost)
	}
	v.Positive("fetch.burst", cfg.Fetch.Burst)
	for i, rule := range cfg.Fetch.HeaderRules {
		v.HostSuffix(fmt.Sprintf("fetch.headerRules[%d].hostSuffix", i), rule.HostSuffix)
		if rule.Referer != "" {
			v.URL(fmt.Sprintf("fetch.headerRules[%d].referer", i), rule.Referer, []string{"http", "https"})
		}
		if rule.Origin != "" {
			v.URL(fmt.Sprintf("fetch.headerRules[%d].origin", i), rule.Origin, []string{"http", "https"})
		}
	}

	v.Positive("engine.segmentCap", cfg.Engine.SegmentCap)
	v.Range("engine.maxVariantDepth", cfg.Engine.MaxVariantDepth, 1, 64)
	v.Positive("engine.sizeSamples", cfg.Engine.SizeSamples)

	v.NonNegative("api.rateLimitPerMinute", cfg.API.RateLimitPerMinute)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{telemetry.ExporterGRPC, telemetry.ExporterHTTP})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
