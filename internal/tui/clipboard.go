package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// Alert formats a finding for sharing. It carries the masked preview only.
func Alert(f scan.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Secret detected: %s\n", f.RuleID)
	fmt.Fprintf(&b, "Location: %s:%d\n", f.FilePath, f.Line)
	fmt.Fprintf(&b, "Severity: %s (%d%%)\n", f.Severity, f.Score)
	fmt.Fprintf(&b, "Preview: %s\n", f.Preview)
	fmt.Fprintf(&b, "Fingerprint: %s\n", f.Fingerprint.Short())
	if f.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", f.Reason)
	}
	return b.String()
}

// CopyAlert puts the alert for f on the terminal clipboard with an OSC52
// escape sequence written to w.
func CopyAlert(w io.Writer, f scan.Finding) error {
	seq := osc52.New(Alert(f))
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case strings.HasPrefix(os.Getenv("TERM"), "screen"):
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(w); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	return nil
}
