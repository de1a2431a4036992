package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is the project config file name.
	DefaultFile = ".sieve.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SIEVE_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Discover returns the path of DefaultFile in dir, or "" if there is none.
func Discover(dir string) string {
	path := filepath.Join(dir, DefaultFile)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}

// Load builds the configuration from defaults, the YAML file at configPath
// (skipped when empty) and SIEVE_* environment variables.
//
// Environment variables split on the first underscore after the prefix:
//
//	SIEVE_SCAN_WORKERS      -> scan.workers
//	SIEVE_SCAN_MIN_SCORE    -> scan.min_score
//	SIEVE_RULES_DISABLED    -> rules.disabled (comma-separated)
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default value.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps SIEVE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile reads a config file, rejecting non-regular and oversized
// files. The file is opened once and validated through the descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large (max %d bytes)", ErrInvalid, maxConfigFileSize)
	}
	return content, nil
}

// validateConfigFileProperties checks file type and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: config path is not a regular file", ErrInvalid)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalid, info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills values that unmarshal left unusable and normalizes
// list values that arrive comma-separated from the environment.
func applyDefaults(cfg *Config) {
	if cfg.Scan.Workers <= 0 {
		cfg.Scan.Workers = Default().Scan.Workers
	}
	cfg.Rules.Disabled = splitList(cfg.Rules.Disabled)
	cfg.Scan.ExtraIgnore = splitList(cfg.Scan.ExtraIgnore)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// IsNotExist reports whether err is a missing config file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
