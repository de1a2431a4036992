// Package report renders scan and repair results.
//
// Every renderer shows a finding's value as its masked preview only. The
// matched text never reaches an output surface.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// ErrUnknownFormat indicates an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Format names an output encoding.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatHuman, FormatJSON, FormatSARIF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (want human, json or sarif)", ErrUnknownFormat, s)
}

// Options tune rendering.
type Options struct {
	// Verbose adds each finding's reason to human output.
	Verbose bool
	// ToolVersion is reported in SARIF output.
	ToolVersion string
}

// Write renders a scan report in format.
func Write(w io.Writer, format Format, r *scan.Report, opts Options) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, toJSON(r))
	case FormatSARIF:
		return writeJSON(w, toSARIF(r, opts.ToolVersion))
	case FormatHuman, "":
		return writeHuman(w, r, opts)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// jsonFinding is the machine-readable form of a finding. Columns are
// 1-based; ColumnEnd is exclusive.
type jsonFinding struct {
	Index       int    `json:"index"`
	RuleID      string `json:"rule_id"`
	FilePath    string `json:"file_path"`
	Line        int    `json:"line"`
	ColumnStart int    `json:"column_start"`
	ColumnEnd   int    `json:"column_end"`
	Score       int    `json:"score"`
	Severity    string `json:"severity"`
	Fingerprint string `json:"fingerprint"`
	Preview     string `json:"preview"`
	Reason      string `json:"reason"`
	Baselined   bool   `json:"baselined"`
}

type jsonReport struct {
	Mode         string           `json:"mode"`
	Findings     []jsonFinding    `json:"findings"`
	Errors       []scan.FileError `json:"errors,omitempty"`
	FilesScanned int              `json:"files_scanned"`
	FilesSkipped int              `json:"files_skipped"`
	Suppressed   int              `json:"suppressed"`
	SuppressedBy map[string]int   `json:"suppressed_by,omitempty"`
}

func toJSON(r *scan.Report) jsonReport {
	out := jsonReport{
		Mode:         r.Mode,
		Findings:     make([]jsonFinding, 0, len(r.Findings)),
		Errors:       r.Errors,
		FilesScanned: r.FilesScanned,
		FilesSkipped: r.FilesSkipped,
		Suppressed:   r.Suppressed,
		SuppressedBy: r.SuppressedBy,
	}
	for i, f := range r.Findings {
		out.Findings = append(out.Findings, jsonFinding{
			Index:       i + 1,
			RuleID:      f.RuleID,
			FilePath:    f.FilePath,
			Line:        f.Line,
			ColumnStart: f.Span.Start + 1,
			ColumnEnd:   f.Span.End + 1,
			Score:       f.Score,
			Severity:    string(f.Severity),
			Fingerprint: f.Fingerprint.String(),
			Preview:     f.Preview,
			Reason:      f.Reason,
			Baselined:   f.Baselined,
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteRepair renders repair results.
func WriteRepair(w io.Writer, format Format, results []repair.Result) error {
	summary := repair.Summarize(results)
	if format == FormatJSON {
		return writeJSON(w, struct {
			Results []repair.Result `json:"results"`
			Summary repair.Summary  `json:"summary"`
		}{results, summary})
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "FAILED   %s: %v\n", r.FilePath, r.Err)
		case r.Written:
			fmt.Fprintf(w, "repaired %s (%d)\n", r.FilePath, r.Repaired)
		case r.Repaired > 0:
			fmt.Fprintf(w, "would repair %s (%d)\n", r.FilePath, r.Repaired)
		}
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "skipped  %s:%d %s (%s)\n", r.FilePath, s.Line, s.Fingerprint.Short(), s.Reason)
		}
	}
	fmt.Fprintf(w, "%d repaired, %d skipped, %d failed in %d files\n",
		summary.Repaired, summary.Skipped, summary.Failed, summary.Files)
	return nil
}
