// Package logging wraps zap for sieve.
//
// Every Logger method takes a context; scan and request ids and the active
// OpenTelemetry span are attached from it automatically. Output goes through
// a redacting encoder so a matched secret cannot reach a log line even when
// a caller logs it by mistake. Callers still log masked previews only.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), os.Stderr)
//	ctx = logging.WithScanID(ctx, id)
//	logger.Info(ctx, "scan complete", zap.Int("findings", n))
//
// Logs go to stderr; stdout carries reports.
package logging

import (
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug and carries per-line scanner detail.
const TraceLevel = zapcore.DebugLevel - 1

// maxPatternLen bounds user-supplied redaction patterns.
const maxPatternLen = 200

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level     `koanf:"level"`
	Format    string            `koanf:"format"`
	Caller    bool              `koanf:"caller"`
	Fields    map[string]string `koanf:"fields"`
	Redaction RedactionConfig   `koanf:"redaction"`
}

// RedactionConfig selects what the encoder masks.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// SensitiveKeys are field names whose values are always masked.
var SensitiveKeys = []string{
	"password", "secret", "token", "api_key", "authorization", "bearer",
	"credential", "private_key", "matched_text", "value",
}

// SensitivePatterns mask string values that look like credentials.
var SensitivePatterns = []string{
	`(?i)bearer\s+\S+`,
	`(?i)api[_-]?key[=:]\s*\S+`,
	`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`,
	`\bgh[pousr]_[A-Za-z0-9]{36,}\b`,
	`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
}

// NewDefaultConfig returns the CLI defaults: warnings and up, console
// encoding, redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.WarnLevel,
		Format: "console",
		Redaction: RedactionConfig{
			Enabled:  true,
			Fields:   append([]string(nil), SensitiveKeys...),
			Patterns: append([]string(nil), SensitivePatterns...),
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Format)
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return errors.New("static log fields need a key and a value")
		}
	}
	if !c.Redaction.Enabled {
		return nil
	}
	_, err := compilePatterns(c.Redaction.Patterns)
	return err
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d chars: %.20q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// LevelFromString parses a zap level name, plus "trace".
func LevelFromString(s string) (zapcore.Level, error) {
	if s == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}
