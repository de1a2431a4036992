// Package config provides configuration loading for sieve.
//
// Configuration is assembled from defaults, an optional YAML file and
// SIEVE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrInvalid indicates a configuration value failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete sieve configuration.
type Config struct {
	Scan      ScanConfig      `koanf:"scan"`
	Rules     RulesConfig     `koanf:"rules"`
	Baseline  BaselineConfig  `koanf:"baseline"`
	Repair    RepairConfig    `koanf:"repair"`
	Logging   LoggingConfig   `koanf:"logging"`
	Server    ServerConfig    `koanf:"server"`
	Watch     WatchConfig     `koanf:"watch"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ScanConfig controls detection and tree walking.
type ScanConfig struct {
	Workers          int      `koanf:"workers"`
	MinScore         int      `koanf:"min_score"`
	HighConfidence   int      `koanf:"high_confidence"`
	MaxFileSize      int64    `koanf:"max_file_size"`
	MaxLineLength    int      `koanf:"max_line_length"`
	BinaryProbeBytes int      `koanf:"binary_probe_bytes"`
	ShowSuppressed   bool     `koanf:"show_suppressed"`
	Informational    bool     `koanf:"informational"`
	ExtraIgnore      []string `koanf:"extra_ignore"`
	EntropyThreshold float64  `koanf:"entropy_threshold"`
	EntropyMinLength int      `koanf:"entropy_min_length"`
	CacheFile        string   `koanf:"cache_file"`
}

// RulesConfig controls the rule table.
type RulesConfig struct {
	Disabled      []string `koanf:"disabled"`
	Gitleaks      bool     `koanf:"gitleaks"`
	AllowlistFile string   `koanf:"allowlist_file"`
}

// BaselineConfig locates the baseline file. A corrupt baseline always
// aborts the scan.
type BaselineConfig struct {
	Path string `koanf:"path"`
}

// RepairConfig controls in-place redaction.
type RepairConfig struct {
	Placeholder string `koanf:"placeholder"`
	DryRun      bool   `koanf:"dry_run"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	RateLimit       float64  `koanf:"rate_limit"`
	Burst           int      `koanf:"burst"`
	MaxBodyBytes    int64    `koanf:"max_body_bytes"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// TelemetryConfig controls OTLP export of scan spans and API metrics.
// Export is off unless enabled.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	Metrics         bool     `koanf:"metrics"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Workers:          runtime.NumCPU(),
			MinScore:         40,
			HighConfidence:   60,
			MaxFileSize:      2 << 20,
			MaxLineLength:    4096,
			BinaryProbeBytes: 8000,
			EntropyThreshold: 0.55,
			EntropyMinLength: 16,
			CacheFile:        ".sieve_cache.json",
		},
		Baseline: BaselineConfig{
			Path: ".sieve.baseline.json",
		},
		Repair: RepairConfig{
			Placeholder: "REDACTED_SECRET",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			RateLimit:       20,
			Burst:           40,
			MaxBodyBytes:    4 << 20,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Watch: WatchConfig{
			Debounce: Duration(300 * time.Millisecond),
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			SamplingRate:    1.0,
			Metrics:         true,
			ExportInterval:  Duration(15 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks config for errors. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	s := c.Scan
	if s.Workers < 1 {
		invalid("scan.workers must be >= 1, got %d", s.Workers)
	}
	if s.MinScore < 0 || s.MinScore > 100 {
		invalid("scan.min_score must be in [0,100], got %d", s.MinScore)
	}
	if s.HighConfidence < 0 || s.HighConfidence > 100 {
		invalid("scan.high_confidence must be in [0,100], got %d", s.HighConfidence)
	}
	if s.MaxFileSize <= 0 {
		invalid("scan.max_file_size must be > 0, got %d", s.MaxFileSize)
	}
	if s.MaxLineLength < 0 {
		invalid("scan.max_line_length must be >= 0, got %d", s.MaxLineLength)
	}
	if s.BinaryProbeBytes <= 0 {
		invalid("scan.binary_probe_bytes must be > 0, got %d", s.BinaryProbeBytes)
	}
	if s.EntropyThreshold <= 0 || s.EntropyThreshold > 1 {
		invalid("scan.entropy_threshold must be in (0,1], got %v", s.EntropyThreshold)
	}
	if s.EntropyMinLength < 2 {
		invalid("scan.entropy_min_length must be >= 2, got %d", s.EntropyMinLength)
	}

	if c.Baseline.Path == "" {
		invalid("baseline.path is required")
	}

	p := c.Repair.Placeholder
	if p == "" || strings.ContainsAny(p, "\r\n") {
		invalid("repair.placeholder must be a non-empty single-line string")
	}

	if !logLevels[c.Logging.Level] {
		invalid("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		invalid("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	srv := c.Server
	if srv.Port < 1 || srv.Port > 65535 {
		invalid("server.port must be in [1,65535], got %d", srv.Port)
	}
	if srv.RateLimit < 0 {
		invalid("server.rate_limit must be >= 0, got %v", srv.RateLimit)
	}
	if srv.RateLimit > 0 && srv.Burst < 1 {
		invalid("server.burst must be >= 1 when rate limiting, got %d", srv.Burst)
	}
	if srv.MaxBodyBytes <= 0 {
		invalid("server.max_body_bytes must be > 0, got %d", srv.MaxBodyBytes)
	}

	return errors.Join(errs...)
}
