// Package http exposes the scan engine over a small JSON API.
//
// Responses carry masked previews only. Request bodies are never logged.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/sieve/internal/logging"
	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// DefaultPath names content submitted without a path.
const DefaultPath = "input"

// Server provides HTTP endpoints for sieve.
type Server struct {
	echo     *echo.Echo
	orch     *scan.Orchestrator
	logger   *logging.Logger
	config   *Config
	limiter  *rate.Limiter
	gatherer prometheus.Gatherer
	metrics  *HTTPMetrics
	version  string
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second accepted on /api.
	// Zero or less disables limiting.
	RateLimit float64
	Burst     int

	// MaxBodyBytes caps request bodies. Zero or less disables the cap.
	MaxBodyBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHTTPMetrics records request metrics through m.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new HTTP server.
func NewServer(orch *scan.Orchestrator, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8787,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		orch:     orch,
		logger:   logger.Named("http"),
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}

	s.registerRoutes()
	return s, nil
}

// requestLogger tags the request context with its id and logs one line per
// request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), reqID)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			// Let echo write the error so the logged status is the real one.
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// rateLimit rejects requests once the shared token bucket is empty.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1", s.rateLimit)
	if s.config.MaxBodyBytes > 0 {
		v1.Use(middleware.BodyLimit(fmt.Sprintf("%dB", s.config.MaxBodyBytes)))
	}
	v1.POST("/scan", s.handleScan)
	v1.GET("/rules", s.handleRules)
}

// ScanRequest is the request body for POST /api/v1/scan. Exactly one of
// Content and Diff is set.
type ScanRequest struct {
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Diff    string `json:"diff,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Rules   int    `json:"rules"`
}

// RuleInfo describes one detector in GET /api/v1/rules.
type RuleInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Confidence  int    `json:"confidence,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Rules:   s.orch.Scanner().Rules().Len(),
	})
}

func (s *Server) handleRules(c echo.Context) error {
	set := s.orch.Scanner().Rules()
	out := make([]RuleInfo, 0, set.Len())
	for _, r := range set.Rules() {
		out = append(out, RuleInfo{
			ID:          r.ID,
			Kind:        r.Kind.String(),
			Description: r.Description,
			Confidence:  r.ConfidenceBase,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// handleScan runs a text or diff scan and returns the JSON report.
func (s *Server) handleScan(c echo.Context) error {
	ctx := c.Request().Context()

	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid scan request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var (
		r   *scan.Report
		err error
	)
	switch {
	case req.Content != "" && req.Diff != "":
		return echo.NewHTTPError(http.StatusBadRequest, "content and diff are mutually exclusive")
	case req.Diff != "":
		r, err = s.orch.ScanDiffText(ctx, req.Diff)
	case req.Content != "":
		path := req.Path
		if path == "" {
			path = DefaultPath
		}
		r, err = s.orch.ScanText(ctx, path, req.Content)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "content or diff field is required")
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return echo.NewHTTPError(499, "request cancelled")
		}
		s.logger.Error(ctx, "scan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "scan failed")
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, report.FormatJSON, r, report.Options{}); err != nil {
		s.logger.Error(ctx, "rendering report", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "rendering report failed")
	}

	s.logger.Debug(ctx, "scan served",
		zap.String("mode", r.Mode),
		zap.Int("findings", len(r.Findings)),
		zap.Int("suppressed", r.Suppressed),
	)
	return c.JSONBlob(http.StatusOK, buf.Bytes())
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
