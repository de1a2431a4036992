// Package rules defines the ordered table of secret detectors.
//
// A rule is either a pattern rule (a compiled regexp with a fixed confidence)
// or a heuristic rule (a pure function that scores keyword proximity and
// token entropy). The table is built once at process start and is read-only
// afterwards; new detectors are added by appending table entries.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/sieve/internal/entropy"
)

// Kind tags the two rule variants.
type Kind int

const (
	// KindPattern rules match a vendor-specific format with fixed confidence.
	KindPattern Kind = iota
	// KindHeuristic rules score keyword proximity and entropy.
	KindHeuristic
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	case KindHeuristic:
		return "heuristic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrInvalidRule indicates a rule table entry failed validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrUnknownRule indicates a rule id that is not in the table.
	ErrUnknownRule = errors.New("unknown rule")
)

// Match is a single detector hit on a line. Start and End are byte offsets
// into the line, End exclusive.
type Match struct {
	Start  int
	End    int
	Score  int
	Reason string
}

// HeuristicFunc scores a line and returns zero or more matches. It must be
// pure: the same line always yields the same matches.
type HeuristicFunc func(line string) []Match

// Rule is one detector in the table.
type Rule struct {
	// ID is the stable identifier used in findings and fingerprints.
	ID string

	// Kind selects between Pattern and Heuristic.
	Kind Kind

	// Description is a human-readable label.
	Description string

	// ConfidenceBase is the score reported by pattern rules (0-100).
	ConfidenceBase int

	// Reason explains pattern matches in findings.
	Reason string

	// Pattern matches the secret for pattern rules.
	Pattern *regexp.Regexp

	// SecretGroup selects the capture group holding the secret. Zero means
	// the whole match.
	SecretGroup int

	// Keywords are lowercase substrings of which at least one must appear in
	// the line before the pattern is tried. Empty means always try.
	Keywords []string

	// MinEntropy rejects pattern matches whose Shannon entropy (bits/byte)
	// is lower. Zero disables the check.
	MinEntropy float64

	// Heuristic scores the line for heuristic rules.
	Heuristic HeuristicFunc
}

// Matches reports whether the rule fires anywhere in text.
func (r *Rule) Matches(text string) bool {
	return len(r.Find(text)) > 0
}

// Find returns every match of the rule in line, in offset order.
func (r *Rule) Find(line string) []Match {
	switch r.Kind {
	case KindPattern:
		return r.findPattern(line)
	case KindHeuristic:
		if r.Heuristic == nil {
			return nil
		}
		return r.Heuristic(line)
	default:
		return nil
	}
}

func (r *Rule) findPattern(line string) []Match {
	if r.Pattern == nil || !r.hasKeyword(line) {
		return nil
	}

	locs := r.Pattern.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if g := r.SecretGroup; g > 0 && 2*g+1 < len(loc) && loc[2*g] >= 0 {
			start, end = loc[2*g], loc[2*g+1]
		}
		if start >= end {
			continue
		}
		if r.MinEntropy > 0 && entropy.Shannon(line[start:end]) < r.MinEntropy {
			continue
		}
		matches = append(matches, Match{
			Start:  start,
			End:    end,
			Score:  r.ConfidenceBase,
			Reason: r.Reason,
		})
	}
	return matches
}

func (r *Rule) hasKeyword(line string) bool {
	if len(r.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// validate checks a table entry.
func (r *Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: ID is required", ErrInvalidRule)
	}
	if r.ConfidenceBase < 0 || r.ConfidenceBase > 100 {
		return fmt.Errorf("%w: rule %s: confidence %d out of range", ErrInvalidRule, r.ID, r.ConfidenceBase)
	}
	switch r.Kind {
	case KindPattern:
		if r.Pattern == nil {
			return fmt.Errorf("%w: rule %s: pattern is required", ErrInvalidRule, r.ID)
		}
		if r.SecretGroup < 0 || r.SecretGroup > r.Pattern.NumSubexp() {
			return fmt.Errorf("%w: rule %s: secret group %d out of range", ErrInvalidRule, r.ID, r.SecretGroup)
		}
	case KindHeuristic:
		if r.Heuristic == nil {
			return fmt.Errorf("%w: rule %s: heuristic function is required", ErrInvalidRule, r.ID)
		}
	default:
		return fmt.Errorf("%w: rule %s: unknown kind %d", ErrInvalidRule, r.ID, int(r.Kind))
	}
	return nil
}

// Set is an ordered, read-only rule table.
type Set struct {
	rules      []*Rule
	patterns   []*Rule
	heuristics []*Rule
	byID       map[string]*Rule
}

// Options configures Set construction.
type Options struct {
	// Disabled lists rule ids to drop from the table.
	Disabled []string

	// Gitleaks appends the gitleaks default rule pack after the built-in
	// pattern rules.
	Gitleaks bool

	// Entropy overrides the scorer used by heuristic rules.
	Entropy entropy.Scorer
}

// Option mutates Options.
type Option func(*Options)

// WithDisabled drops the given rule ids.
func WithDisabled(ids ...string) Option {
	return func(o *Options) { o.Disabled = append(o.Disabled, ids...) }
}

// WithGitleaks enables the gitleaks rule pack.
func WithGitleaks(enabled bool) Option {
	return func(o *Options) { o.Gitleaks = enabled }
}

// WithEntropy sets the entropy scorer for heuristic rules.
func WithEntropy(s entropy.Scorer) Option {
	return func(o *Options) { o.Entropy = s }
}

// New builds the rule table.
func New(opts ...Option) (*Set, error) {
	o := Options{Entropy: entropy.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	table := builtinPatterns()
	if o.Gitleaks {
		extra, err := gitleaksPatterns()
		if err != nil {
			return nil, err
		}
		table = append(table, extra...)
	}
	table = append(table, builtinHeuristics(o.Entropy)...)

	return newSet(table, o.Disabled)
}

// Default returns the built-in table. It panics if the table is invalid,
// which can only happen through a programming error.
func Default() *Set {
	s, err := New()
	if err != nil {
		panic("rules: built-in table is invalid: " + err.Error())
	}
	return s
}

func newSet(table []*Rule, disabled []string) (*Set, error) {
	all := make(map[string]bool, len(table))
	for _, r := range table {
		all[r.ID] = true
	}

	skip := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		if !all[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRule, id)
		}
		skip[id] = true
	}

	s := &Set{byID: make(map[string]*Rule, len(table))}
	for _, r := range table {
		if skip[r.ID] {
			continue
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidRule, r.ID)
		}
		s.byID[r.ID] = r
		s.rules = append(s.rules, r)
		if r.Kind == KindPattern {
			s.patterns = append(s.patterns, r)
		} else {
			s.heuristics = append(s.heuristics, r)
		}
	}
	return s, nil
}

// Rules returns every rule in evaluation order.
func (s *Set) Rules() []*Rule { return s.rules }

// Patterns returns the pattern rules in evaluation order.
func (s *Set) Patterns() []*Rule { return s.patterns }

// Heuristics returns the heuristic rules in evaluation order.
func (s *Set) Heuristics() []*Rule { return s.heuristics }

// Lookup returns the rule with the given id.
func (s *Set) Lookup(id string) (*Rule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }
