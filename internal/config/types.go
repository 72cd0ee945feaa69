// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads streamgrab's configuration with the precedence
// ENV > file > defaults and keeps it current when the file changes.
package config

import (
	"github.com/ManuGH/streamgrab/internal/classify"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMGRAB_"

// AppConfig is the effective configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	LogService string
	ListenAddr string
	OutputDir  string
	Fetch      FetchConfig
	Engine     EngineConfig
	Filter     classify.Rules
	API        APIConfig
	Telemetry  TelemetryConfig
}

// FetchConfig shapes outgoing requests.
type FetchConfig struct {
	UserAgent   string
	RatePerHost float64
	Burst       int
	HeaderRules []HeaderRuleConfig
}

// HeaderRuleConfig adds headers for hosts that check where a request came from.
type HeaderRuleConfig struct {
	HostSuffix string            `yaml:"hostSuffix"`
	Referer    string            `yaml:"referer,omitempty"`
	Origin     string            `yaml:"origin,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// EngineConfig bounds resolution and size estimation.
type EngineConfig struct {
	SegmentCap      int
	MaxVariantDepth int
	SizeSamples     int
	EstimateSize    bool
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	RateLimitPerMinute int
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the YAML document. Pointer and nil-slice fields distinguish
// "not set" from an explicit zero value.
type FileConfig struct {
	LogLevel   string               `yaml:"logLevel,omitempty"`
	LogService string               `yaml:"logService,omitempty"`
	ListenAddr string               `yaml:"listenAddr,omitempty"`
	OutputDir  string               `yaml:"outputDir,omitempty"`
	Fetch      *FetchFileConfig     `yaml:"fetch,omitempty"`
	Engine     *EngineFileConfig    `yaml:"engine,omitempty"`
	Filter     *FilterFileConfig    `yaml:"filter,omitempty"`
	API        *APIFileConfig       `yaml:"api,omitempty"`
	Telemetry  *TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type FetchFileConfig struct {
	UserAgent   string             `yaml:"userAgent,omitempty"`
	RatePerHost *float64           `yaml:"ratePerHost,omitempty"`
	Burst       *int               `yaml:"burst,omitempty"`
	HeaderRules []HeaderRuleConfig `yaml:"headerRules,omitempty"`
}

type EngineFileConfig struct {
	SegmentCap      *int  `yaml:"segmentCap,omitempty"`
	MaxVariantDepth *int  `yaml:"maxVariantDepth,omitempty"`
	SizeSamples     *int  `yaml:"sizeSamples,omitempty"`
	EstimateSize    *bool `yaml:"estimateSize,omitempty"`
}

// FilterFileConfig replaces a rule list wholesale when the list is present,
// including an explicit empty list.
type FilterFileConfig struct {
	DenyTokens     []string `yaml:"denyTokens"`
	DenyExtensions []string `yaml:"denyExtensions"`
	AudioTokens    []string `yaml:"audioTokens"`
	VideoTokens    []string `yaml:"videoTokens"`
}

type APIFileConfig struct {
	RateLimitPerMinute *int `yaml:"rateLimitPerMinute,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
