// Package main implements the sieve CLI: scan a tree or a diff for leaked
// secrets, triage findings, manage the baseline and redact in place.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/allowlist"
	"github.com/fyrsmithlabs/sieve/internal/baseline"
	"github.com/fyrsmithlabs/sieve/internal/config"
	"github.com/fyrsmithlabs/sieve/internal/entropy"
	"github.com/fyrsmithlabs/sieve/internal/git"
	"github.com/fyrsmithlabs/sieve/internal/logging"
	"github.com/fyrsmithlabs/sieve/internal/metrics"
	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/rules"
	"github.com/fyrsmithlabs/sieve/internal/scan"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
	"github.com/fyrsmithlabs/sieve/internal/telemetry"
)

// Exit codes.
const (
	exitOK       = 0
	exitFindings = 1
	exitError    = 2
)

var (
	// cfgFile overrides .sieve.yaml discovery
	cfgFile string
	// verbose adds finding reasons to output and info-level logs
	verbose bool
	// outputFormat is human, json or sarif
	outputFormat string
	// metricsFile receives the Prometheus metrics on exit
	metricsFile string
	// version information
	version = "dev"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	var ee *exitErr
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		fmt.Fprintf(os.Stderr, "sieve: %v\n", err)
	}
	cancel()
	os.Exit(code)
}

var rootCmd = &cobra.Command{
	Use:   "sieve",
	Short: "Find, triage and redact leaked secrets",
	Long: `sieve scans source trees and git diffs for leaked credentials.

Findings are scored by pattern rules and entropy heuristics, filtered
through an allowlist and a baseline of accepted fingerprints, and can be
redacted in place. Secret values never appear in output: every rendering
uses a masked preview.

Exit status is 0 when clean, 1 when findings at or above the
high-confidence threshold remain (any finding with --strict) and 2 on
operational errors such as a corrupt baseline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .sieve.yaml in the scanned directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show finding reasons and info logs")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", string(report.FormatHuman), "output format: human, json or sarif")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit (textfile collector format)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sieve version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("sieve %s\n", version)
	},
}

// exitErr carries a process exit status. A nil err means the status is the
// whole message, as with findings present.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitErr) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitError
}

// app is the wired engine for one command invocation.
type app struct {
	root         string
	target       string
	cfg          *config.Config
	logger       *logging.Logger
	metrics      *metrics.Metrics
	telemetry    *telemetry.Telemetry
	allow        *allowlist.Allowlist
	scanner      *scanner.Scanner
	baseline     *baseline.Store
	baselinePath string
	format       report.Format
}

// newApp loads configuration and builds the engine rooted at dir, or at the
// directory holding dir when it is a file. With gitRoot set, the root is
// replaced by its repository worktree root so diff paths resolve.
func newApp(cmd *cobra.Command, dir string, gitRoot bool) (*app, error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	target, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	// A file argument is scanned on its own; its directory holds the state.
	root := target
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		root = filepath.Dir(target)
	}
	if gitRoot {
		if root, err = git.RepoRoot(root); err != nil {
			return nil, err
		}
		target = root
	}

	path := cfgFile
	if path == "" {
		path = config.Discover(root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	set, err := rules.New(
		rules.WithDisabled(cfg.Rules.Disabled...),
		rules.WithGitleaks(cfg.Rules.Gitleaks),
		rules.WithEntropy(entropy.Scorer{
			Threshold: cfg.Scan.EntropyThreshold,
			MinLength: cfg.Scan.EntropyMinLength,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("building rules: %w", err)
	}

	allow, err := allowlist.Load(root, cfg.Rules.AllowlistFile)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(cmd.Context(), telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(cmd.Context(), "telemetry degraded", zap.Error(h.Err))
	}

	a := &app{
		root:      root,
		target:    target,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.Default(),
		telemetry: tel,
		allow:     allow,
		scanner: scanner.New(set,
			scanner.WithAllowlist(allow),
			scanner.WithMinScore(cfg.Scan.MinScore),
			scanner.WithMaxLineLength(cfg.Scan.MaxLineLength),
		),
		baselinePath: resolve(root, cfg.Baseline.Path),
		format:       format,
	}

	// A corrupt baseline aborts; it is never replaced by an empty one.
	if a.baseline, err = baseline.Load(a.baselinePath); err != nil {
		a.close()
		return nil, err
	}
	a.metrics.SetBaselineEntries(a.baseline.Len())

	logger.Debug(cmd.Context(), "engine ready",
		zap.String("root", root),
		zap.String("target", target),
		zap.Int("rules", set.Len()),
		zap.Int("baseline_entries", a.baseline.Len()),
		zap.Int("allowlist_entries", allow.Len()))
	return a, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if verbose && level > zap.InfoLevel {
		level = zap.InfoLevel
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	return logging.NewLogger(lc, cmd.ErrOrStderr())
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	t := cfg.Telemetry
	return &telemetry.Config{
		Enabled:         t.Enabled,
		Endpoint:        t.Endpoint,
		Protocol:        t.Protocol,
		Insecure:        t.Insecure,
		TLSSkipVerify:   t.TLSSkipVerify,
		ServiceName:     "sieve",
		ServiceVersion:  version,
		SamplingRate:    t.SamplingRate,
		Metrics:         t.Metrics,
		ExportInterval:  t.ExportInterval.Duration(),
		ShutdownTimeout: t.ShutdownTimeout.Duration(),
	}
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// orchestrator builds a scan orchestrator from the config. extra options
// are applied last.
func (a *app) orchestrator(extra ...scan.Option) *scan.Orchestrator {
	sc := a.cfg.Scan
	opts := []scan.Option{
		scan.WithWorkers(sc.Workers),
		scan.WithHighConfidence(sc.HighConfidence),
		scan.WithInformational(sc.Informational),
		scan.WithShowSuppressed(sc.ShowSuppressed),
		scan.WithMaxFileSize(sc.MaxFileSize),
		scan.WithBinaryProbe(sc.BinaryProbeBytes),
		scan.WithAllowlist(a.allow),
		scan.WithExtraIgnore(a.ignorePatterns()...),
		scan.WithLogger(a.logger),
		scan.WithMetrics(a.metrics),
	}
	return scan.New(a.scanner, a.baseline, append(opts, extra...)...)
}

// ignorePatterns adds sieve's own state files to the configured ignores.
func (a *app) ignorePatterns() []string {
	patterns := append([]string(nil), a.cfg.Scan.ExtraIgnore...)
	for _, p := range []string{a.baselinePath, a.cachePath()} {
		rel, err := filepath.Rel(a.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		patterns = append(patterns, "/"+filepath.ToSlash(rel))
	}
	return patterns
}

func (a *app) repairEngine(root string, dryRun bool) *repair.Engine {
	return repair.New(
		repair.WithRoot(root),
		repair.WithPlaceholder(a.cfg.Repair.Placeholder),
		repair.WithDryRun(dryRun || a.cfg.Repair.DryRun),
		repair.WithLogger(a.logger),
		repair.WithMetrics(a.metrics),
	)
}

func (a *app) cachePath() string {
	return resolve(a.root, a.cfg.Scan.CacheFile)
}

func (a *app) reportOptions() report.Options {
	return report.Options{Verbose: verbose, ToolVersion: version}
}

// close flushes metrics, telemetry and logs. It is best-effort.
func (a *app) close() {
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
			a.logger.Warn(context.Background(), "metrics textfile", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(context.Background()); err != nil {
		a.logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// blocking counts the findings that fail the run: every unbaselined finding
// in strict mode, otherwise those at or above the high-confidence score.
func blocking(r *scan.Report, highConfidence int, strict bool) int {
	n := 0
	for _, f := range r.Findings {
		if f.Baselined {
			continue
		}
		if strict || f.Score >= highConfidence {
			n++
		}
	}
	return n
}

// dirArg returns the directory argument or the working directory.
func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
