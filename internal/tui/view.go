package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sieve/internal/scan"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("238")).
			Bold(true)

	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	previewStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Background(lipgloss.Color("0"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("27")).
			Padding(0, 1)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func severityLabel(s scan.Severity) string {
	switch s {
	case scan.SeverityHigh:
		return highStyle.Render("FAIL")
	case scan.SeverityMedium:
		return mediumStyle.Render("WARN")
	default:
		return lowStyle.Render("INFO")
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.showContext {
		return m.renderContext()
	}
	return m.renderList()
}

func (m Model) renderList() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(" sieve triage "))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d findings, filter: %s", len(m.all), m.filter)))
	if chart := scoreChart(m.all); chart != "" {
		b.WriteString("  " + dimStyle.Render("scores 0 ") + chart + dimStyle.Render(" 100"))
	}
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(dimStyle.Render("no findings match the filter"))
		b.WriteString("\n")
	}
	for i, f := range m.visible {
		line := fmt.Sprintf("%s %3d  %s:%d  %s",
			severityLabel(f.Severity), f.Score, f.FilePath, f.Line, dimStyle.Render(f.RuleID))
		if i == m.cursor {
			line = selectedStyle.Render(">> " + line)
		} else {
			line = "   " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if f, ok := m.selected(); ok {
		b.WriteString("\n")
		b.WriteString(containerStyle.Render(m.renderDetail(f)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderDetail(f scan.Finding) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Rule:        ") + f.RuleID + "\n")
	b.WriteString(labelStyle.Render("Severity:    ") + string(f.Severity) + "\n")
	b.WriteString(labelStyle.Render("Confidence:  ") + fmt.Sprintf("%d%%", f.Score) + "\n")
	b.WriteString(labelStyle.Render("Location:    ") + fmt.Sprintf("%s:%d:%d", f.FilePath, f.Line, f.Span.Start+1) + "\n")
	b.WriteString(labelStyle.Render("Fingerprint: ") + f.Fingerprint.Short() + "\n")
	b.WriteString(labelStyle.Render("Preview:     ") + previewStyle.Render(f.Preview) + "\n")
	if f.Reason != "" {
		b.WriteString("\n" + sectionStyle.Render("Why") + "\n")
		for _, r := range strings.Split(f.Reason, ", ") {
			b.WriteString("- " + r + "\n")
		}
	}
	b.WriteString("\n" + sectionStyle.Render("Remediation") + "\n")
	b.WriteString("1. Revoke the secret.\n")
	b.WriteString("2. Rotate the credential.\n")
	b.WriteString("3. Press g to baseline a false positive, r to redact in place, c to copy an alert.")
	return b.String()
}

func (m Model) renderStatusBar() string {
	mode := "NORMAL"
	if m.strict {
		mode = "STRICT"
	}
	bar := modeStyle.Render("MODE: "+mode) + " " +
		dimStyle.Render(fmt.Sprintf("blocking %d  baselined %d  repaired %d", m.Blocking(), m.ignored, m.repaired))
	if m.status != "" {
		bar += "\n" + statusStyle.Render(m.status)
	}
	return bar + "\n" + m.help.ShortHelpView(m.keys.ShortHelp())
}

func (m Model) renderContext() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" context "))
	if f, ok := m.selected(); ok {
		b.WriteString("  " + dimStyle.Render(fmt.Sprintf("%s:%d", f.FilePath, f.Line)))
	}
	b.WriteString("\n\n")
	for _, l := range m.context {
		prefix := "  "
		text := l.Text
		if l.Target {
			prefix = "> "
			text = highStyle.Render(text)
		}
		b.WriteString(fmt.Sprintf("%s%5d | %s\n", prefix, l.Number, text))
	}
	b.WriteString("\n" + dimStyle.Render("enter/q to close"))
	return b.String()
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" sieve help "))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render("Modes") + "\n")
	b.WriteString("  strict: every remaining finding blocks\n")
	b.WriteString("  normal: only high severity findings block\n\n")
	b.WriteString(dimStyle.Render("? or q to close"))
	return containerStyle.Render(b.String())
}
