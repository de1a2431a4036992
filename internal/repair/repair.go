// Package repair redacts confirmed secrets in place.
//
// Each file is re-read and every finding re-validated against the current
// content before anything is replaced. Replacements are written to a
// sibling temp file that is synced and renamed over the original, so a
// file is either fully repaired or left untouched.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/fingerprint"
	"github.com/fyrsmithlabs/sieve/internal/logging"
	"github.com/fyrsmithlabs/sieve/internal/metrics"
	"github.com/fyrsmithlabs/sieve/internal/scan"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

var tracer = otel.Tracer("sieve/repair")

var (
	// ErrStale indicates the file no longer holds the matched text at the
	// finding's location.
	ErrStale = errors.New("finding is stale")

	// ErrOverlap indicates a finding overlaps another on the same line.
	ErrOverlap = errors.New("finding overlaps another finding")

	// ErrVerify indicates the rewritten content changed more than the
	// targeted lines.
	ErrVerify = errors.New("repair verification failed")
)

// SkipReason says why a finding was not applied.
type SkipReason string

const (
	SkipStale   SkipReason = "stale"
	SkipOverlap SkipReason = "overlap"
)

// Skip is a finding that was not applied.
type Skip struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Line        int                     `json:"line"`
	Reason      SkipReason              `json:"reason"`
}

func (s Skip) Error() string {
	return fmt.Sprintf("line %d (%s): %v", s.Line, s.Fingerprint.Short(), s.Unwrap())
}

func (s Skip) Unwrap() error {
	if s.Reason == SkipOverlap {
		return ErrOverlap
	}
	return ErrStale
}

// Result reports the outcome for one file.
type Result struct {
	FilePath string
	Repaired int
	Written  bool
	Skipped  []Skip
	Err      error
}

// MarshalJSON renders Err as a string.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		FilePath string `json:"file_path"`
		Repaired int    `json:"repaired"`
		Written  bool   `json:"written"`
		Skipped  []Skip `json:"skipped,omitempty"`
		Error    string `json:"error,omitempty"`
	}{r.FilePath, r.Repaired, r.Written, r.Skipped, ""}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Engine applies redactions.
type Engine struct {
	fs          FS
	root        string
	placeholder string
	dryRun      bool
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithFS replaces the filesystem.
func WithFS(fsys FS) Option {
	return func(e *Engine) { e.fs = fsys }
}

// WithRoot resolves relative finding paths against root.
func WithRoot(root string) Option {
	return func(e *Engine) { e.root = root }
}

// WithPlaceholder sets the replacement text.
func WithPlaceholder(p string) Option {
	return func(e *Engine) { e.placeholder = p }
}

// WithDryRun computes results without writing.
func WithDryRun(dry bool) Option {
	return func(e *Engine) { e.dryRun = dry }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		fs:          OSFS{},
		placeholder: scanner.RedactionPlaceholder,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repair rewrites every file touched by findings and returns one Result
// per distinct file, ordered by path. A failure in one file never stops
// the others. ctx is checked between files only; a started write always
// runs to completion.
func (e *Engine) Repair(ctx context.Context, findings []scan.Finding) []Result {
	ctx, span := tracer.Start(ctx, "repair.run")
	defer span.End()

	byFile := make(map[string][]scan.Finding)
	for _, f := range findings {
		byFile[f.FilePath] = append(byFile[f.FilePath], f)
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{FilePath: p, Err: err})
			continue
		}
		r := e.repairFile(ctx, p, byFile[p])
		e.record(ctx, r, len(byFile[p]))
		results = append(results, r)
	}

	s := Summarize(results)
	span.SetAttributes(
		attribute.Int("repair.files", s.Files),
		attribute.Int("repair.repaired", s.Repaired),
		attribute.Int("repair.failed", s.Failed),
	)
	if s.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d files failed", s.Failed))
	}
	return results
}

func (e *Engine) record(ctx context.Context, r Result, total int) {
	var stale, overlap int
	for _, s := range r.Skipped {
		if s.Reason == SkipOverlap {
			overlap++
		} else {
			stale++
		}
	}
	e.metrics.RecordRepair("stale", stale)
	e.metrics.RecordRepair("overlap", overlap)

	if r.Err != nil {
		e.metrics.RecordRepair("error", total-stale-overlap)
		e.logger.Warn(ctx, "repair failed", zap.String("path", r.FilePath), zap.Error(r.Err))
		return
	}
	e.metrics.RecordRepair("repaired", r.Repaired)
	e.logger.Info(ctx, "file repaired",
		zap.String("path", r.FilePath),
		zap.Int("repaired", r.Repaired),
		zap.Int("skipped", len(r.Skipped)),
		zap.Bool("written", r.Written),
	)
}

// edit is a validated replacement on one line.
type edit struct {
	line int
	span scanner.Span
}

func (e *Engine) repairFile(ctx context.Context, path string, findings []scan.Finding) Result {
	res := Result{FilePath: path}

	abs := path
	if e.root != "" && !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, filepath.FromSlash(path))
	}

	info, err := e.fs.Stat(abs)
	if err != nil {
		res.Err = fmt.Errorf("stat: %w", err)
		return res
	}
	data, err := e.fs.ReadFile(abs)
	if err != nil {
		res.Err = fmt.Errorf("read: %w", err)
		return res
	}

	lines := splitLines(string(data))
	edits, skipped := plan(lines, findings)
	res.Skipped = skipped
	if len(edits) == 0 {
		return res
	}

	before := strings.Join(lines, "")
	after, changed := apply(lines, edits, e.placeholder)
	if err := verifyLineChanges(before, after, changed); err != nil {
		res.Err = err
		return res
	}
	res.Repaired = len(edits)

	if e.dryRun {
		e.logger.Debug(ctx, "dry run, not writing", zap.String("path", path))
		return res
	}
	if err := e.writeAtomic(abs, []byte(after), info.Mode().Perm()); err != nil {
		res.Repaired = 0
		res.Err = err
		return res
	}
	res.Written = true
	return res
}

// plan validates findings against the current lines. Findings are
// considered in line and column order; a finding overlapping an earlier
// accepted one on the same line is skipped.
func plan(lines []string, findings []scan.Finding) ([]edit, []Skip) {
	sorted := append([]scan.Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line < sorted[j].Line
		}
		return sorted[i].Span.Start < sorted[j].Span.Start
	})

	var (
		edits   []edit
		skipped []Skip
	)
	for _, f := range sorted {
		skip := Skip{Fingerprint: f.Fingerprint, Line: f.Line}
		if !matchesAt(lines, f) {
			skip.Reason = SkipStale
			skipped = append(skipped, skip)
			continue
		}
		if overlapsEdit(edits, f) {
			skip.Reason = SkipOverlap
			skipped = append(skipped, skip)
			continue
		}
		edits = append(edits, edit{line: f.Line, span: f.Span})
	}
	return edits, skipped
}

// matchesAt is the staleness guard: the span on the finding's line must
// still hold exactly the matched text.
func matchesAt(lines []string, f scan.Finding) bool {
	if f.MatchedText == "" || f.Line < 1 || f.Line > len(lines) {
		return false
	}
	content, _ := cutEOL(lines[f.Line-1])
	s := f.Span
	if s.Start < 0 || s.End > len(content) || s.Start >= s.End {
		return false
	}
	return content[s.Start:s.End] == f.MatchedText
}

func overlapsEdit(edits []edit, f scan.Finding) bool {
	for _, ed := range edits {
		if ed.line == f.Line && ed.span.Overlaps(f.Span) {
			return true
		}
	}
	return false
}

// apply replaces every edit span with placeholder. Spans on a line are
// applied in descending offset order so earlier offsets stay valid.
func apply(lines []string, edits []edit, placeholder string) (string, map[int]bool) {
	byLine := make(map[int][]scanner.Span)
	for _, ed := range edits {
		byLine[ed.line] = append(byLine[ed.line], ed.span)
	}

	out := make([]string, len(lines))
	copy(out, lines)
	changed := make(map[int]bool, len(byLine))
	for n, spans := range byLine {
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })
		content, eol := cutEOL(out[n-1])
		for _, s := range spans {
			content = content[:s.Start] + placeholder + content[s.End:]
		}
		out[n-1] = content + eol
		changed[n] = true
	}
	return strings.Join(out, ""), changed
}

// splitLines splits text into lines that keep their terminators, so
// joining them reproduces text exactly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// cutEOL separates a line from its "\n" or "\r\n" terminator.
func cutEOL(line string) (content, eol string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}

// Summary totals a set of results.
type Summary struct {
	Files    int `json:"files"`
	Written  int `json:"written"`
	Repaired int `json:"repaired"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Files++
		s.Repaired += r.Repaired
		s.Skipped += len(r.Skipped)
		if r.Written {
			s.Written++
		}
		if r.Err != nil {
			s.Failed++
		}
	}
	return s
}
