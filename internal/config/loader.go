// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/streamgrab/internal/classify"
	"github.com/ManuGH/streamgrab/internal/log"
)

// Defaults.
const (
	DefaultLogLevel           = "info"
	DefaultLogService         = "streamgrab"
	DefaultListenAddr         = ":8088"
	DefaultOutputDir          = "downloads"
	DefaultBurst              = 4
	DefaultSegmentCap         = 20000
	DefaultMaxVariantDepth    = 8
	DefaultSizeSamples        = 3
	DefaultRateLimitPerMinute = 120
	DefaultTelemetryExporter  = "grpc"
	DefaultTelemetryEndpoint  = "localhost:4317"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
	environ         func() []string
}

// NewLoader creates a loader. An empty configPath means ENV and defaults only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
		environ:         os.Environ,
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string {
	return l.configPath
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load builds the effective configuration: defaults, then the file (strict),
// then ENV overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   DefaultLogLevel,
		LogService: DefaultLogService,
		ListenAddr: DefaultListenAddr,
		OutputDir:  DefaultOutputDir,
		Fetch: FetchConfig{
			Burst: DefaultBurst,
		},
		Engine: EngineConfig{
			SegmentCap:      DefaultSegmentCap,
			MaxVariantDepth: DefaultMaxVariantDepth,
			SizeSamples:     DefaultSizeSamples,
			EstimateSize:    true,
		},
		Filter: classify.DefaultRules(),
		API: APIConfig{
			RateLimitPerMinute: DefaultRateLimitPerMinute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultTelemetryExporter,
			Endpoint:     DefaultTelemetryEndpoint,
			SamplingRate: 1.0,
		},
	}
}

// loadFile parses a YAML file strictly: unknown keys and trailing documents
// are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogService, src.LogService)
	setString(&dst.ListenAddr, src.ListenAddr)
	setString(&dst.OutputDir, os.ExpandEnv(src.OutputDir))

	if f := src.Fetch; f != nil {
		setString(&dst.Fetch.UserAgent, f.UserAgent)
		setPtr(&dst.Fetch.RatePerHost, f.RatePerHost)
		setPtr(&dst.Fetch.Burst, f.Burst)
		if f.HeaderRules != nil {
			dst.Fetch.HeaderRules = slices.Clone(f.HeaderRules)
		}
	}
	if e := src.Engine; e != nil {
		setPtr(&dst.Engine.SegmentCap, e.SegmentCap)
		setPtr(&dst.Engine.MaxVariantDepth, e.MaxVariantDepth)
		setPtr(&dst.Engine.SizeSamples, e.SizeSamples)
		setPtr(&dst.Engine.EstimateSize, e.EstimateSize)
	}
	if f := src.Filter; f != nil {
		setList(&dst.Filter.DenyTokens, f.DenyTokens)
		setList(&dst.Filter.DenyExtensions, f.DenyExtensions)
		setList(&dst.Filter.AudioTokens, f.AudioTokens)
		setList(&dst.Filter.VideoTokens, f.VideoTokens)
	}
	if a := src.API; a != nil {
		setPtr(&dst.API.RateLimitPerMinute, a.RateLimitPerMinute)
	}
	if t := src.Telemetry; t != nil {
		setPtr(&dst.Telemetry.Enabled, t.Enabled)
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		setPtr(&dst.Telemetry.SamplingRate, t.SamplingRate)
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)
	cfg.ListenAddr = l.envString(EnvPrefix+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.OutputDir = l.envString(EnvPrefix+"OUTPUT_DIR", cfg.OutputDir)

	cfg.Fetch.UserAgent = l.envString(EnvPrefix+"USER_AGENT", cfg.Fetch.UserAgent)
	cfg.Fetch.RatePerHost = l.envFloat(EnvPrefix+"FETCH_RATE_PER_HOST", cfg.Fetch.RatePerHost)
	cfg.Fetch.Burst = l.envInt(EnvPrefix+"FETCH_BURST", cfg.Fetch.Burst)

	cfg.Engine.SegmentCap = l.envInt(EnvPrefix+"SEGMENT_CAP", cfg.Engine.SegmentCap)
	cfg.Engine.MaxVariantDepth = l.envInt(EnvPrefix+"MAX_VARIANT_DEPTH", cfg.Engine.MaxVariantDepth)
	cfg.Engine.SizeSamples = l.envInt(EnvPrefix+"SIZE_SAMPLES", cfg.Engine.SizeSamples)
	cfg.Engine.EstimateSize = l.envBool(EnvPrefix+"ESTIMATE_SIZE", cfg.Engine.EstimateSize)

	cfg.Filter.DenyTokens = l.envList(EnvPrefix+"DENY_TOKENS", cfg.Filter.DenyTokens)
	cfg.Filter.DenyExtensions = l.envList(EnvPrefix+"DENY_EXTENSIONS", cfg.Filter.DenyExtensions)

	cfg.API.RateLimitPerMinute = l.envInt(EnvPrefix+"API_RATE_LIMIT", cfg.API.RateLimitPerMinute)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// ValidateEnvUsage reports STREAMGRAB_* variables that no setting consumes,
// usually typos. Call it after Load. In strict mode they are an error.
func (l *Loader) ValidateEnvUsage(strict bool) error {
	var unknown []string
	for _, pair := range l.environ() {
		key, _, _ := strings.Cut(pair, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	if strict {
		return fmt.Errorf("%w: %s", ErrUnknownEnvKey, strings.Join(unknown, ", "))
	}
	logger := log.WithComponent("config")
	logger.Warn().
		Str("event", "config.unknown_env").
		Strs("keys", unknown).
		Msg("ignoring unknown environment overrides")
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setList(dst *[]string, v []string) {
	if v != nil {
		*dst = slices.Clone(v)
	}
}

// String renders the config for logs without header values, which may carry
// credentials.
func (c AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Version:%s LogLevel:%s ListenAddr:%s OutputDir:%s Rate:%g/s HeaderRules:%d SegmentCap:%d MaxVariantDepth:%d SizeSamples:%d EstimateSize:%t Telemetry:%t}",
		c.Version, c.LogLevel, c.ListenAddr, c.OutputDir, c.Fetch.RatePerHost, len(c.Fetch.HeaderRules),
		c.Engine.SegmentCap, c.Engine.MaxVariantDepth, c.Engine.SizeSamples, c.Engine.EstimateSize, c.Telemetry.Enabled)
}
