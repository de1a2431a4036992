// Package scanner applies the rule table to single lines of text.
//
// The scanner is stateless apart from its configuration and is safe for
// concurrent use by multiple goroutines.
package scanner

import (
	"sort"

	"github.com/fyrsmithlabs/sieve/internal/allowlist"
	"github.com/fyrsmithlabs/sieve/internal/rules"
)

const (
	// DefaultMinScore is the lowest score a finding can have and still be
	// emitted.
	DefaultMinScore = 40

	// DefaultMaxLineLength is the longest line that is scanned. Longer lines
	// are almost always minified or generated content.
	DefaultMaxLineLength = 4096

	// TestPathPenalty is subtracted from heuristic scores in test, fixture
	// and example files.
	TestPathPenalty = 40
)

// Span is a byte range within a line, End exclusive.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span width in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// RawFinding is one detector hit on one line. MatchedText is the literal
// secret and is never serialized.
type RawFinding struct {
	RuleID      string `json:"rule_id"`
	FilePath    string `json:"file_path"`
	Line        int    `json:"line"`
	Span        Span   `json:"span"`
	MatchedText string `json:"-"`
	Score       int    `json:"score"`
	Reason      string `json:"reason"`
}

// Suppression explains why a match was not emitted.
type Suppression string

const (
	// NotSuppressed marks an emitted finding.
	NotSuppressed Suppression = ""
	// SuppressedPlaceholder marks values that follow placeholder conventions.
	SuppressedPlaceholder Suppression = "placeholder"
	// SuppressedAllowlisted marks values matched by an allowlist regex.
	SuppressedAllowlisted Suppression = "allowlisted"
	// SuppressedBelowThreshold marks matches scoring under the minimum.
	SuppressedBelowThreshold Suppression = "below-threshold"
)

// Verdict is a match together with its suppression status.
type Verdict struct {
	RawFinding
	Suppressed Suppression `json:"suppressed,omitempty"`
}

// Emitted reports whether the verdict produces a finding.
func (v Verdict) Emitted() bool { return v.Suppressed == NotSuppressed }

// Scanner applies a rule set to lines.
type Scanner struct {
	rules         *rules.Set
	allow         *allowlist.Allowlist
	minScore      int
	maxLineLength int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithAllowlist suppresses values matching the allowlist content regexes.
func WithAllowlist(a *allowlist.Allowlist) Option {
	return func(s *Scanner) { s.allow = a }
}

// WithMinScore sets the emission threshold.
func WithMinScore(n int) Option {
	return func(s *Scanner) { s.minScore = n }
}

// WithMaxLineLength sets the longest line that is scanned. Zero or less
// disables the limit.
func WithMaxLineLength(n int) Option {
	return func(s *Scanner) { s.maxLineLength = n }
}

// New creates a Scanner. A nil set uses rules.Default().
func New(set *rules.Set, opts ...Option) *Scanner {
	if set == nil {
		set = rules.Default()
	}
	s := &Scanner{
		rules:         set,
		minScore:      DefaultMinScore,
		maxLineLength: DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule set in use.
func (s *Scanner) Rules() *rules.Set { return s.rules }

// ScanLine returns the findings emitted for one line, ordered by column.
func (s *Scanner) ScanLine(path string, line int, content string) []RawFinding {
	verdicts := s.Evaluate(path, line, content)
	if len(verdicts) == 0 {
		return nil
	}
	out := make([]RawFinding, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Emitted() {
			out = append(out, v.RawFinding)
		}
	}
	return out
}

// Evaluate returns every match on the line, emitted or suppressed, ordered
// by column. Suppression is decided after matching so the reason stays
// available for diagnostics.
func (s *Scanner) Evaluate(path string, line int, content string) []Verdict {
	if s.maxLineLength > 0 && len(content) > s.maxLineLength {
		return nil
	}

	hits := s.match(content)
	if len(hits) == 0 {
		return nil
	}

	testPath := IsTestPath(path)
	out := make([]Verdict, 0, len(hits))
	for _, h := range hits {
		score := h.match.Score
		if testPath && h.rule.Kind == rules.KindHeuristic {
			score -= TestPathPenalty
		}
		score = clampScore(score)

		text := content[h.match.Start:h.match.End]
		v := Verdict{
			RawFinding: RawFinding{
				RuleID:      h.rule.ID,
				FilePath:    path,
				Line:        line,
				Span:        Span{Start: h.match.Start, End: h.match.End},
				MatchedText: text,
				Score:       score,
				Reason:      h.match.Reason,
			},
		}

		switch {
		case IsPlaceholder(text, content):
			v.Suppressed = SuppressedPlaceholder
		case s.allow.ContentAllowed(text) || s.allow.ContentAllowed(content):
			v.Suppressed = SuppressedAllowlisted
		case score < s.minScore:
			v.Suppressed = SuppressedBelowThreshold
		}
		out = append(out, v)
	}
	return out
}

type hit struct {
	rule  *rules.Rule
	match rules.Match
}

// match applies the precedence policy. Pattern rules run in table order and
// the first rule to cover a span keeps it. Any pattern hit short-circuits the
// heuristics. Otherwise every heuristic runs and, within each group of
// overlapping spans, the highest score wins.
func (s *Scanner) match(line string) []hit {
	var out []hit
	for _, r := range s.rules.Patterns() {
		for _, m := range r.Find(line) {
			if overlapsAny(out, m) {
				continue
			}
			out = append(out, hit{rule: r, match: m})
		}
	}
	if len(out) > 0 {
		sortHits(out)
		return out
	}

	var all []hit
	for _, r := range s.rules.Heuristics() {
		for _, m := range r.Find(line) {
			all = append(all, hit{rule: r, match: m})
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].match.Start < all[j].match.Start
	})

	groupEnd := -1
	for _, h := range all {
		if len(out) > 0 && h.match.Start < groupEnd {
			last := &out[len(out)-1]
			if h.match.Score > last.match.Score {
				*last = h
			}
			if h.match.End > groupEnd {
				groupEnd = h.match.End
			}
			continue
		}
		out = append(out, h)
		groupEnd = h.match.End
	}
	return out
}

func overlapsAny(hits []hit, m rules.Match) bool {
	span := Span{Start: m.Start, End: m.End}
	for _, h := range hits {
		if span.Overlaps(Span{Start: h.match.Start, End: h.match.End}) {
			return true
		}
	}
	return false
}

func sortHits(hits []hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].match.Start != hits[j].match.Start {
			return hits[i].match.Start < hits[j].match.Start
		}
		return hits[i].rule.ID < hits[j].rule.ID
	})
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
