package scan

import (
	"encoding/json"
	"sort"

	"github.com/fyrsmithlabs/sieve/internal/fingerprint"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

// Severity buckets a score for display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityOf maps a score to its severity bucket.
func SeverityOf(score int) Severity {
	switch {
	case score >= 80:
		return SeverityHigh
	case score >= 60:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities from most to least severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Finding is a scored, located and fingerprinted candidate secret.
// MatchedText is carried for repair but never serialized; Preview is the
// only rendering of the value that leaves the process.
type Finding struct {
	scanner.RawFinding
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Baselined   bool                    `json:"baselined"`
	Severity    Severity                `json:"severity"`
	Preview     string                  `json:"preview"`
}

// NewFinding derives the identity and display fields of a raw finding.
func NewFinding(raw scanner.RawFinding) Finding {
	return Finding{
		RawFinding:  raw,
		Fingerprint: fingerprint.Of(raw.RuleID, raw.MatchedText, raw.FilePath),
		Severity:    SeverityOf(raw.Score),
		Preview:     scanner.Preview(raw.MatchedText),
	}
}

// ID returns the finding's fingerprint.
func (f Finding) ID() fingerprint.Fingerprint { return f.Fingerprint }

// Rule returns the id of the rule that produced the finding.
func (f Finding) Rule() string { return f.RuleID }

// Path returns the file the finding was reported in.
func (f Finding) Path() string { return f.FilePath }

// FileError is a per-file failure recorded while scanning continues.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// MarshalJSON renders the error as {"path","error"}.
func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

// Report is the result of one scan pass.
type Report struct {
	// ScanID correlates the pass with its log lines. It is excluded from
	// JSON so repeated scans render identically.
	ScanID       string         `json:"-"`
	Mode         string         `json:"mode"`
	Findings     []Finding      `json:"findings"`
	Errors       []FileError    `json:"errors,omitempty"`
	FilesScanned int            `json:"files_scanned"`
	FilesSkipped int            `json:"files_skipped"`
	Suppressed   int            `json:"suppressed"`
	SuppressedBy map[string]int `json:"suppressed_by,omitempty"`
}

// Count returns the number of findings at or above score.
func (r *Report) Count(score int) int {
	n := 0
	for _, f := range r.Findings {
		if f.Score >= score {
			n++
		}
	}
	return n
}

func (r *Report) suppress(reason string) {
	if r.SuppressedBy == nil {
		r.SuppressedBy = make(map[string]int)
	}
	r.SuppressedBy[reason]++
	r.Suppressed++
}

// SortFindings orders findings by score descending, then path, line,
// column and rule id ascending. The order depends only on finding content.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func sortErrors(errs []FileError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Path != errs[j].Path {
			return errs[i].Path < errs[j].Path
		}
		return errs[i].Err.Error() < errs[j].Err.Error()
	})
}
