package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/logging"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/sieve/internal/http"

// HTTPMetrics records per-request OpenTelemetry instruments. An instrument
// that fails to register is left nil and skipped.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the instruments on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.Nop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "http instrument unavailable",
				zap.String("instrument", name), zap.Error(err))
		}
	}

	var m HTTPMetrics
	var err error
	m.requests, err = meter.Int64Counter("sieve.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status."),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.duration, err = meter.Float64Histogram("sieve.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	warn("request_duration_seconds", err)

	m.size, err = meter.Int64Histogram("sieve.http.response_size_bytes",
		metric.WithDescription("HTTP response body size."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 16384, 65536, 262144, 1048576))
	warn("response_size_bytes", err)

	m.inFlight, err = meter.Int64UpDownCounter("sieve.http.active_requests",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}"))
	warn("active_requests", err)

	return &m
}

// MetricsMiddleware records every request that reaches it.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)
			m.record(ctx, c, err, time.Since(start))
			return err
		}
	}
}

func (m *HTTPMetrics) record(ctx context.Context, c echo.Context, err error, elapsed time.Duration) {
	attrs := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("method", c.Request().Method),
		attribute.String("route", routeLabel(c.Path())),
		attribute.Int("status", statusOf(c, err)),
	))
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.size != nil {
		m.size.Record(ctx, c.Response().Size, attrs)
	}
}

// statusOf returns the status the error handler will write for err.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routeLabel returns the registered route pattern. Unmatched requests share
// one label to bound cardinality.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
