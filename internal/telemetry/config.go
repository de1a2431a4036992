// Package telemetry wires OpenTelemetry trace and metric export for sieve.
//
// Scan passes open spans and the HTTP API records otel instruments through
// the global providers. New installs OTLP-backed providers when enabled;
// otherwise the globals stay no-op and nothing leaves the process.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// ErrInvalidConfig indicates a telemetry setting failed validation.
var ErrInvalidConfig = errors.New("invalid telemetry config")

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	Insecure       bool
	TLSSkipVerify  bool
	ServiceName    string
	ServiceVersion string

	// SamplingRate is the fraction of root spans kept, in [0,1].
	SamplingRate float64

	Metrics         bool
	ExportInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns telemetry disabled, pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "sieve",
		ServiceVersion:  "dev",
		SamplingRate:    1.0,
		Metrics:         true,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks an enabled configuration. A disabled one is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	case c.ServiceName == "":
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	case c.Protocol != "" && c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP:
		return fmt.Errorf("%w: protocol must be %q or %q, got %q", ErrInvalidConfig, ProtocolGRPC, ProtocolHTTP, c.Protocol)
	case c.Insecure && !isLocal(c.Endpoint):
		return fmt.Errorf("%w: insecure export is only allowed to a local endpoint, got %q", ErrInvalidConfig, c.Endpoint)
	case c.SamplingRate < 0 || c.SamplingRate > 1:
		return fmt.Errorf("%w: sampling rate must be in [0,1], got %v", ErrInvalidConfig, c.SamplingRate)
	case c.Metrics && c.ExportInterval <= 0:
		return fmt.Errorf("%w: export interval must be positive", ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// isLocal reports whether endpoint names the loopback host.
func isLocal(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https://. The OTLP exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
