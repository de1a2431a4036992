// Package scan orchestrates detection over file trees, diffs and text.
//
// Every entry point fingerprints the scanner's raw findings, filters them
// through the baseline and returns a Report whose finding order is a pure
// function of finding content, independent of worker count.
package scan

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/allowlist"
	"github.com/fyrsmithlabs/sieve/internal/baseline"
	"github.com/fyrsmithlabs/sieve/internal/diff"
	"github.com/fyrsmithlabs/sieve/internal/ignore"
	"github.com/fyrsmithlabs/sieve/internal/logging"
	"github.com/fyrsmithlabs/sieve/internal/metrics"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

var tracer = otel.Tracer("sieve/scan")

const (
	// DefaultHighConfidence is the score at which findings are surfaced
	// by default. Lower-scoring findings are informational.
	DefaultHighConfidence = 60

	// DefaultMaxFileSize is the largest file scanned in tree mode.
	DefaultMaxFileSize = 2 << 20

	// DefaultBinaryProbeBytes is how many leading bytes are searched for a
	// NUL byte to classify a file as binary.
	DefaultBinaryProbeBytes = 8000
)

// Scan modes, reported in Report.Mode and metrics labels.
const (
	ModeTree  = "tree"
	ModeDiff  = "diff"
	ModeText  = "text"
	ModeFiles = "files"
)

// Suppression reasons added by the orchestrator on top of the scanner's.
const (
	SuppressedBaseline      = "baseline"
	SuppressedInformational = "informational"
)

// Orchestrator runs scan passes. It is safe for concurrent use as long as
// the baseline is not mutated during a pass.
type Orchestrator struct {
	scanner        *scanner.Scanner
	baseline       *baseline.Store
	allow          *allowlist.Allowlist
	matcher        *ignore.Matcher
	extraIgnore    []string
	workers        int
	highConfidence int
	maxFileSize    int64
	binaryProbe    int
	showSuppressed bool
	informational  bool
	logger         *logging.Logger
	metrics        *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of files scanned in parallel.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithHighConfidence sets the score at which findings are surfaced.
func WithHighConfidence(n int) Option {
	return func(o *Orchestrator) { o.highConfidence = n }
}

// WithInformational keeps findings below the high-confidence threshold.
func WithInformational(keep bool) Option {
	return func(o *Orchestrator) { o.informational = keep }
}

// WithShowSuppressed keeps baselined findings, marked Baselined.
func WithShowSuppressed(show bool) Option {
	return func(o *Orchestrator) { o.showSuppressed = show }
}

// WithMaxFileSize skips larger files in tree mode.
func WithMaxFileSize(n int64) Option {
	return func(o *Orchestrator) { o.maxFileSize = n }
}

// WithBinaryProbe sets how many leading bytes are probed for NUL.
func WithBinaryProbe(n int) Option {
	return func(o *Orchestrator) { o.binaryProbe = n }
}

// WithAllowlist skips paths matched by the allowlist.
func WithAllowlist(a *allowlist.Allowlist) Option {
	return func(o *Orchestrator) { o.allow = a }
}

// WithIgnore replaces the ignore rules loaded from the scan root.
func WithIgnore(m *ignore.Matcher) Option {
	return func(o *Orchestrator) { o.matcher = m }
}

// WithExtraIgnore adds gitignore-style patterns to those found in the root.
func WithExtraIgnore(patterns ...string) Option {
	return func(o *Orchestrator) { o.extraIgnore = append(o.extraIgnore, patterns...) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator. A nil scanner uses the default rule set; a
// nil baseline suppresses nothing.
func New(s *scanner.Scanner, b *baseline.Store, opts ...Option) *Orchestrator {
	if s == nil {
		s = scanner.New(nil)
	}
	o := &Orchestrator{
		scanner:        s,
		baseline:       b,
		workers:        runtime.NumCPU(),
		highConfidence: DefaultHighConfidence,
		maxFileSize:    DefaultMaxFileSize,
		binaryProbe:    DefaultBinaryProbeBytes,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// Scanner returns the line scanner in use.
func (o *Orchestrator) Scanner() *scanner.Scanner { return o.scanner }

// ScanDiff scans the added lines of parsed hunks. Parse errors from the
// diff parser are carried into the report.
func (o *Orchestrator) ScanDiff(ctx context.Context, hunks []diff.Hunk, parseErrs ...*diff.FileError) (*Report, error) {
	ctx, p := o.begin(ctx, ModeDiff)
	defer p.end()

	for _, e := range parseErrs {
		p.report.Errors = append(p.report.Errors, FileError{Path: e.Path, Err: e})
	}
	o.logger.Debug(ctx, "diff parsed",
		zap.Int("files", len(hunks)),
		zap.Int("added_lines", diff.AddedLines(hunks)),
		zap.Int("parse_errors", len(parseErrs)))

	var verdicts []scanner.Verdict
	for _, h := range hunks {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(err)
		}
		if h.Deleted || h.Binary {
			p.report.FilesSkipped++
			continue
		}
		p.report.FilesScanned++
		for _, l := range h.Added {
			verdicts = append(verdicts, o.scanner.Evaluate(h.FilePath, l.Number, l.Content)...)
		}
	}

	o.finish(ctx, p.report, verdicts)
	return p.report, nil
}

// ScanDiffText parses unified diff text and scans its added lines.
func (o *Orchestrator) ScanDiffText(ctx context.Context, text string) (*Report, error) {
	hunks, errs := diff.Parse(text)
	return o.ScanDiff(ctx, hunks, errs...)
}

// ScanText scans text as the content of a single file at path.
func (o *Orchestrator) ScanText(ctx context.Context, path, text string) (*Report, error) {
	ctx, p := o.begin(ctx, ModeText)
	defer p.end()

	if err := ctx.Err(); err != nil {
		return nil, p.fail(err)
	}
	p.report.FilesScanned = 1
	o.finish(ctx, p.report, o.scanLines(path, text))
	return p.report, nil
}

// scanLines evaluates every line of a file's content. Line endings are
// stripped before matching so spans index the line without "\r\n".
func (o *Orchestrator) scanLines(path, text string) []scanner.Verdict {
	var verdicts []scanner.Verdict
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		verdicts = append(verdicts, o.scanner.Evaluate(path, i+1, line)...)
	}
	return verdicts
}

// finish converts verdicts into findings, filters them and sorts the
// report. It is the single-threaded barrier of every pass.
func (o *Orchestrator) finish(ctx context.Context, r *Report, verdicts []scanner.Verdict) {
	for _, v := range verdicts {
		if !v.Emitted() {
			r.suppress(string(v.Suppressed))
			o.metrics.RecordSuppressed(string(v.Suppressed))
			continue
		}

		f := NewFinding(v.RawFinding)
		if o.baseline != nil && o.baseline.Contains(f.Fingerprint) {
			if !o.showSuppressed {
				r.suppress(SuppressedBaseline)
				o.metrics.RecordSuppressed(SuppressedBaseline)
				continue
			}
			f.Baselined = true
		}
		if f.Score < o.highConfidence && !o.informational {
			r.suppress(SuppressedInformational)
			o.metrics.RecordSuppressed(SuppressedInformational)
			continue
		}

		r.Findings = append(r.Findings, f)
		o.metrics.RecordFinding(f.RuleID, string(f.Severity))
		o.logger.Debug(ctx, "finding",
			zap.String("rule", f.RuleID),
			zap.String("path", f.FilePath),
			zap.Int("line", f.Line),
			zap.Int("score", f.Score),
			zap.String("preview", f.Preview),
			zap.String("fingerprint", f.Fingerprint.Short()),
		)
	}

	SortFindings(r.Findings)
	sortErrors(r.Errors)
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
}

// pass tracks the bookkeeping shared by every scan mode.
type pass struct {
	o      *Orchestrator
	ctx    context.Context
	span   trace.Span
	start  time.Time
	report *Report
	err    error
}

func (o *Orchestrator) begin(ctx context.Context, mode string) (context.Context, *pass) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "scan."+mode)
	span.SetAttributes(
		attribute.String("scan.id", id),
		attribute.String("scan.mode", mode),
	)
	ctx = logging.WithScanID(ctx, id)
	o.logger.Debug(ctx, "scan started", zap.String("mode", mode))

	return ctx, &pass{
		o:      o,
		ctx:    ctx,
		span:   span,
		start:  time.Now(),
		report: &Report{ScanID: id, Mode: mode},
	}
}

func (p *pass) fail(err error) error {
	p.err = err
	return err
}

func (p *pass) end() {
	defer p.span.End()
	elapsed := time.Since(p.start)
	p.o.metrics.RecordScan(p.report.Mode, elapsed, p.err)
	p.o.metrics.RecordFiles(p.report.FilesScanned)
	p.o.metrics.RecordFileErrors(len(p.report.Errors))

	if p.err != nil {
		p.span.RecordError(p.err)
		p.span.SetStatus(codes.Error, p.err.Error())
		p.o.logger.Warn(p.ctx, "scan aborted", zap.String("mode", p.report.Mode), zap.Error(p.err))
		return
	}

	p.span.SetAttributes(
		attribute.Int("files.scanned", p.report.FilesScanned),
		attribute.Int("findings.count", len(p.report.Findings)),
		attribute.Int("errors.count", len(p.report.Errors)),
	)
	for _, e := range p.report.Errors {
		p.o.logger.Warn(p.ctx, "file skipped", zap.String("path", e.Path), zap.Error(e.Err))
	}
	p.o.logger.Info(p.ctx, "scan complete",
		zap.String("mode", p.report.Mode),
		zap.Int("files", p.report.FilesScanned),
		zap.Int("findings", len(p.report.Findings)),
		zap.Int("suppressed", p.report.Suppressed),
		zap.Int("errors", len(p.report.Errors)),
		zap.Duration("elapsed", elapsed),
	)
}

func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
