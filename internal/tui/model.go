// Package tui is the interactive triage view for scan findings.
//
// Side effects (baseline writes, repairs, clipboard copies, file reads)
// run as tea.Cmds through Actions so the model can be driven by messages
// alone.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/sieve/internal/fingerprint"
	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// Filter selects which severities are listed.
type Filter int

const (
	FilterAll Filter = iota
	FilterHigh
	FilterMedium
	FilterLow
)

func (f Filter) String() string {
	switch f {
	case FilterHigh:
		return "high"
	case FilterMedium:
		return "medium"
	case FilterLow:
		return "low"
	default:
		return "all"
	}
}

func (f Filter) keep(s scan.Severity) bool {
	switch f {
	case FilterHigh:
		return s == scan.SeverityHigh
	case FilterMedium:
		return s == scan.SeverityMedium
	case FilterLow:
		return s == scan.SeverityLow
	default:
		return true
	}
}

// Actions performs the side effects of triage keys. A nil action disables
// its key.
type Actions struct {
	// Ignore adds the finding to the baseline and persists it.
	Ignore func(scan.Finding) error
	// Repair redacts the finding in place.
	Repair func(scan.Finding) repair.Result
	// Context returns the masked lines around the finding.
	Context func(scan.Finding) ([]ContextLine, error)
	// Copy puts a masked alert for the finding on the clipboard.
	Copy func(scan.Finding) error
}

// Options configures a Model.
type Options struct {
	Strict  bool
	Actions Actions
}

type ignoredMsg struct {
	fp  fingerprint.Fingerprint
	err error
}

type repairedMsg struct {
	fp     fingerprint.Fingerprint
	result repair.Result
}

type copiedMsg struct {
	fp  fingerprint.Fingerprint
	err error
}

type contextMsg struct {
	lines []ContextLine
	err   error
}

// Model is the triage state.
type Model struct {
	all      []scan.Finding
	visible  []scan.Finding
	cursor   int
	filter   Filter
	strict   bool
	actions  Actions
	keys     keyMap
	help     help.Model
	showHelp bool

	showContext bool
	context     []ContextLine

	status   string
	ignored  int
	repaired int
	width    int
	quitting bool
}

// New creates a model listing findings in their report order.
func New(findings []scan.Finding, opts Options) Model {
	m := Model{
		all:     append([]scan.Finding(nil), findings...),
		strict:  opts.Strict,
		actions: opts.Actions,
		keys:    defaultKeys(),
		help:    help.New(),
	}
	m.refilter()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Remaining returns the findings not yet ignored or repaired.
func (m Model) Remaining() []scan.Finding { return m.all }

// Strict reports whether strict mode is on.
func (m Model) Strict() bool { return m.strict }

// Blocking returns the number of remaining findings that fail a commit:
// every finding in strict mode, otherwise high severity only.
func (m Model) Blocking() int {
	if m.strict {
		return len(m.all)
	}
	n := 0
	for _, f := range m.all {
		if f.Severity == scan.SeverityHigh {
			n++
		}
	}
	return n
}

// Counts returns how many findings were ignored and repaired.
func (m Model) Counts() (ignored, repaired int) { return m.ignored, m.repaired }

func (m Model) selected() (scan.Finding, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return scan.Finding{}, false
	}
	return m.visible[m.cursor], true
}

func (m *Model) refilter() {
	m.visible = make([]scan.Finding, 0, len(m.all))
	for _, f := range m.all {
		if m.filter.keep(f.Severity) {
			m.visible = append(m.visible, f)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// drop removes the finding with fp from the lists.
func (m *Model) drop(fp fingerprint.Fingerprint) {
	out := make([]scan.Finding, 0, len(m.all))
	for _, f := range m.all {
		if f.Fingerprint != fp {
			out = append(out, f)
		}
	}
	m.all = out
	m.refilter()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ignoredMsg:
		if msg.err != nil {
			m.status = "baseline failed: " + msg.err.Error()
			return m, nil
		}
		m.ignored++
		m.status = "added " + msg.fp.Short() + " to baseline"
		m.drop(msg.fp)
		return m.quitIfDone()

	case repairedMsg:
		r := msg.result
		switch {
		case r.Err != nil:
			m.status = "repair failed: " + r.Err.Error()
			return m, nil
		case len(r.Skipped) > 0:
			m.status = fmt.Sprintf("repair skipped: %s", r.Skipped[0].Reason)
			return m, nil
		}
		m.repaired += r.Repaired
		m.status = "repaired " + r.FilePath
		m.drop(msg.fp)
		return m.quitIfDone()

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "copied alert for " + msg.fp.Short() + " to clipboard"
		return m, nil

	case contextMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.context = msg.lines
		m.showContext = true
		return m, nil
	}
	return m, nil
}

func (m Model) quitIfDone() (tea.Model, tea.Cmd) {
	if len(m.all) == 0 {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}
	if m.showContext {
		if key.Matches(msg, m.keys.Context, m.keys.Quit) {
			m.showContext = false
			m.context = nil
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.visible) > 0 {
			m.cursor = (m.cursor + 1) % len(m.visible)
		}
	case key.Matches(msg, m.keys.Up):
		if len(m.visible) > 0 {
			m.cursor = (m.cursor - 1 + len(m.visible)) % len(m.visible)
		}

	case key.Matches(msg, m.keys.All):
		m.setFilter(FilterAll)
	case key.Matches(msg, m.keys.High):
		m.setFilter(FilterHigh)
	case key.Matches(msg, m.keys.Medium):
		m.setFilter(FilterMedium)
	case key.Matches(msg, m.keys.Low):
		m.setFilter(FilterLow)

	case key.Matches(msg, m.keys.Strict):
		m.strict = !m.strict
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.help.ShowAll = true

	case key.Matches(msg, m.keys.Ignore):
		f, ok := m.selected()
		if !ok || m.actions.Ignore == nil {
			return m, nil
		}
		ignore := m.actions.Ignore
		return m, func() tea.Msg {
			return ignoredMsg{fp: f.Fingerprint, err: ignore(f)}
		}

	case key.Matches(msg, m.keys.Repair):
		f, ok := m.selected()
		if !ok || m.actions.Repair == nil {
			return m, nil
		}
		fix := m.actions.Repair
		return m, func() tea.Msg {
			return repairedMsg{fp: f.Fingerprint, result: fix(f)}
		}

	case key.Matches(msg, m.keys.Copy):
		f, ok := m.selected()
		if !ok || m.actions.Copy == nil {
			return m, nil
		}
		cp := m.actions.Copy
		return m, func() tea.Msg {
			return copiedMsg{fp: f.Fingerprint, err: cp(f)}
		}

	case key.Matches(msg, m.keys.Context):
		f, ok := m.selected()
		if !ok || m.actions.Context == nil {
			return m, nil
		}
		read := m.actions.Context
		return m, func() tea.Msg {
			lines, err := read(f)
			return contextMsg{lines: lines, err: err}
		}
	}
	return m, nil
}

func (m *Model) setFilter(f Filter) {
	m.filter = f
	m.cursor = 0
	m.refilter()
}

// Run starts the program on the terminal and returns the final model.
func Run(findings []scan.Finding, opts Options, progOpts ...tea.ProgramOption) (Model, error) {
	final, err := tea.NewProgram(New(findings, opts), progOpts...).Run()
	if err != nil {
		return Model{}, fmt.Errorf("running triage: %w", err)
	}
	return final.(Model), nil
}
