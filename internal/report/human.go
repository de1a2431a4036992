package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// styles holds severity colors. The renderer is bound to the output
// writer, so non-terminal output carries no escape codes.
type styles struct {
	high, medium, low, dim, bold lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		high:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		medium: r.NewStyle().Foreground(lipgloss.Color("214")),
		low:    r.NewStyle().Foreground(lipgloss.Color("244")),
		dim:    r.NewStyle().Faint(true),
		bold:   r.NewStyle().Bold(true),
	}
}

func (s styles) severity(sev scan.Severity) lipgloss.Style {
	switch sev {
	case scan.SeverityHigh:
		return s.high
	case scan.SeverityMedium:
		return s.medium
	default:
		return s.low
	}
}

func writeHuman(w io.Writer, r *scan.Report, opts Options) error {
	st := newStyles(w)
	var b strings.Builder

	counts := map[scan.Severity]int{}
	for i, f := range r.Findings {
		counts[f.Severity]++
		label := fmt.Sprintf("%-6s", strings.ToUpper(string(f.Severity)))
		fmt.Fprintf(&b, "[%d] %s %3d  %s  %s  %s",
			i+1,
			st.severity(f.Severity).Render(label),
			f.Score,
			st.bold.Render(fmt.Sprintf("%s:%d:%d", f.FilePath, f.Line, f.Span.Start+1)),
			f.RuleID,
			f.Preview,
		)
		if f.Baselined {
			b.WriteString(st.dim.Render(" (baselined)"))
		}
		b.WriteString(st.dim.Render(" " + f.Fingerprint.Short()))
		b.WriteByte('\n')
		if opts.Verbose && f.Reason != "" {
			fmt.Fprintf(&b, "    %s\n", st.dim.Render(f.Reason))
		}
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&b, "error: %s: %v\n", e.Path, e.Err)
	}

	if len(r.Findings) == 0 {
		b.WriteString("no secrets found")
	} else {
		fmt.Fprintf(&b, "%d findings (%d high, %d medium, %d low)",
			len(r.Findings), counts[scan.SeverityHigh], counts[scan.SeverityMedium], counts[scan.SeverityLow])
	}
	fmt.Fprintf(&b, " in %d files", r.FilesScanned)
	if r.Suppressed > 0 {
		fmt.Fprintf(&b, "; %d suppressed", r.Suppressed)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "; %d errors", len(r.Errors))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
