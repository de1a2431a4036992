package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sievehttp "github.com/fyrsmithlabs/sieve/internal/http"
)

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config, 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config, 8787)")
}

// serveCmd runs the scan API
var serveCmd = &cobra.Command{
	Use:   "serve [path]",
	Short: "Serve the scan API over HTTP",
	Long: `Serve the scan engine as a JSON API.

Endpoints:
  GET  /health        liveness, version and rule count
  GET  /metrics       Prometheus metrics
  POST /api/v1/scan   scan {"content": ...} or {"diff": ...}
  GET  /api/v1/rules  list detection rules

The baseline and allowlist are loaded from path (default: the working
directory). Responses carry masked previews only.

Examples:
  # Serve on the default address
  sieve serve

  # Scan a snippet
  curl -s localhost:8787/api/v1/scan -d '{"path":"app.env","content":"..."}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	sc := a.cfg.Server
	cfg := &sievehttp.Config{
		Host:         sc.Host,
		Port:         sc.Port,
		RateLimit:    sc.RateLimit,
		Burst:        sc.Burst,
		MaxBodyBytes: sc.MaxBodyBytes,
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv, err := sievehttp.NewServer(a.orchestrator(), a.logger, cfg,
		sievehttp.WithGatherer(prometheus.DefaultGatherer),
		sievehttp.WithHTTPMetrics(sievehttp.NewHTTPMetrics(a.logger)),
		sievehttp.WithVersion(version),
	)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	cmd.Printf("Serving on http://%s\n", srv.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "http shutdown", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
