package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the trace and meter providers installed for one run.
//
// A provider that cannot be built degrades the instance instead of failing
// the run; the matching otel global stays no-op.
type Telemetry struct {
	config *Config
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider

	mu       sync.Mutex
	stopped  bool
	setupErr []error
}

// New validates cfg and, when enabled, installs OTLP providers as the
// otel globals. A nil cfg means disabled.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	res := newResource(cfg)

	tp, err := newTracerProvider(ctx, cfg, res, &o)
	if err != nil {
		t.setupErr = append(t.setupErr, err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}
	mp, err := newMeterProvider(ctx, cfg, res, &o)
	switch {
	case err != nil:
		t.setupErr = append(t.setupErr, err)
	case mp != nil:
		t.mp = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return t, nil
}

// Tracer returns a tracer from the owned provider, falling back to the
// global one.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.Tracer(name, opts...)
	}
	return t.tp.Tracer(name, opts...)
}

// Meter returns a meter from the owned provider, falling back to the
// global one.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.Meter(name, opts...)
	}
	return t.mp.Meter(name, opts...)
}

// lifecycle is the part of both SDK providers that Shutdown and ForceFlush
// drive.
type lifecycle interface {
	Shutdown(context.Context) error
	ForceFlush(context.Context) error
}

func (t *Telemetry) providers() []lifecycle {
	var ps []lifecycle
	if t.tp != nil {
		ps = append(ps, t.tp)
	}
	if t.mp != nil {
		ps = append(ps, t.mp)
	}
	return ps
}

// Shutdown flushes and stops the providers. Without a deadline on ctx it is
// bounded by the configured shutdown timeout.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}
	var errs []error
	for _, p := range t.providers() {
		errs = append(errs, p.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// ForceFlush exports pending spans and metrics now.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, p := range t.providers() {
		errs = append(errs, p.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// HealthStatus reports provider state.
type HealthStatus struct {
	// Healthy is false once shut down.
	Healthy bool
	// Degraded is set when a provider could not be built.
	Degraded bool
	Err      error
}

// Health returns the current status. A nil Telemetry is degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return HealthStatus{
		Healthy:  !t.stopped,
		Degraded: len(t.setupErr) > 0,
		Err:      errors.Join(t.setupErr...),
	}
}

// IsEnabled reports whether export is configured and not yet shut down.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.config.Enabled && t.Health().Healthy
}
