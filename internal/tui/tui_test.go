package tui

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/scan"
	"github.com/fyrsmithlabs/sieve/internal/scanner"
)

const secret = "AKIA1234567890EXAMPLE"

func finding(path string, line, score int, text string) scan.Finding {
	return scan.NewFinding(scanner.RawFinding{
		RuleID:      "test-rule",
		FilePath:    path,
		Line:        line,
		Span:        scanner.Span{Start: 0, End: len(text)},
		MatchedText: text,
		Score:       score,
		Reason:      "looks secret, high entropy",
	})
}

func sample() []scan.Finding {
	return []scan.Finding{
		finding("a.go", 1, 95, secret),
		finding("b.go", 2, 70, "sk_live_abcdefghijklmnop"),
		finding("c.go", 3, 45, "hunter2hunter2hunter2"),
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// send feeds msg to m and runs any returned command once, feeding its
// message back in.
func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model := next.(Model)
	if cmd == nil {
		return model, nil
	}
	out := cmd()
	if _, quit := out.(tea.QuitMsg); quit {
		return model, cmd
	}
	next, cmd = model.Update(out)
	return next.(Model), cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNew(t *testing.T) {
	m := New(sample(), Options{})
	assert.Len(t, m.visible, 3)
	assert.Equal(t, 0, m.cursor)
	assert.False(t, m.Strict())
	assert.Nil(t, m.Init())
	assert.Equal(t, 1, m.Blocking())
}

func TestNavigationWraps(t *testing.T) {
	m := New(sample(), Options{})

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m, _ = send(t, m, keyRune('j'))
	m, _ = send(t, m, keyRune('j'))
	assert.Equal(t, 0, m.cursor)
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, m.cursor)
}

func TestSeverityFilter(t *testing.T) {
	m := New(sample(), Options{})

	tests := []struct {
		key  rune
		want []scan.Severity
	}{
		{'2', []scan.Severity{scan.SeverityHigh}},
		{'3', []scan.Severity{scan.SeverityMedium}},
		{'4', []scan.Severity{scan.SeverityLow}},
		{'1', []scan.Severity{scan.SeverityHigh, scan.SeverityMedium, scan.SeverityLow}},
	}
	for _, tt := range tests {
		m, _ = send(t, m, keyRune(tt.key))
		var got []scan.Severity
		for _, f := range m.visible {
			got = append(got, f.Severity)
		}
		assert.Equal(t, tt.want, got, "key %c", tt.key)
		assert.Equal(t, 0, m.cursor)
	}
}

func TestStrictToggle(t *testing.T) {
	m := New(sample(), Options{})
	m, _ = send(t, m, keyRune('s'))
	assert.True(t, m.Strict())
	assert.Equal(t, 3, m.Blocking())
	assert.Contains(t, m.View(), "STRICT")
}

func TestIgnore(t *testing.T) {
	var ignored []scan.Finding
	m := New(sample(), Options{Actions: Actions{
		Ignore: func(f scan.Finding) error {
			ignored = append(ignored, f)
			return nil
		},
	}})

	m, cmd := send(t, m, keyRune('g'))
	assert.Nil(t, cmd)
	require.Len(t, ignored, 1)
	assert.Equal(t, "a.go", ignored[0].FilePath)
	assert.Len(t, m.Remaining(), 2)
	n, _ := m.Counts()
	assert.Equal(t, 1, n)
	assert.Contains(t, m.status, "to baseline")
}

func TestIgnoreFailureKeepsFinding(t *testing.T) {
	m := New(sample(), Options{Actions: Actions{
		Ignore: func(scan.Finding) error { return errors.New("disk full") },
	}})
	m, _ = send(t, m, keyRune('g'))
	assert.Len(t, m.Remaining(), 3)
	assert.Contains(t, m.status, "disk full")
}

func TestRepair(t *testing.T) {
	m := New(sample()[:1], Options{Actions: Actions{
		Repair: func(f scan.Finding) repair.Result {
			return repair.Result{FilePath: f.FilePath, Repaired: 1, Written: true}
		},
	}})

	m, cmd := send(t, m, keyRune('r'))
	assert.Empty(t, m.Remaining())
	_, repaired := m.Counts()
	assert.Equal(t, 1, repaired)
	assert.True(t, isQuit(cmd), "last finding handled quits")
	assert.Empty(t, m.View())
}

func TestRepairSkipped(t *testing.T) {
	m := New(sample(), Options{Actions: Actions{
		Repair: func(f scan.Finding) repair.Result {
			return repair.Result{FilePath: f.FilePath, Skipped: []repair.Skip{{Reason: repair.SkipStale}}}
		},
	}})
	m, _ = send(t, m, keyRune('r'))
	assert.Len(t, m.Remaining(), 3)
	assert.Contains(t, m.status, "stale")
}

func TestNilActionsAreNoops(t *testing.T) {
	m := New(sample(), Options{})
	for _, r := range []rune{'g', 'r', 'c'} {
		next, cmd := m.Update(keyRune(r))
		assert.Nil(t, cmd)
		m = next.(Model)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).showContext)
}

func TestCopy(t *testing.T) {
	var copied []scan.Finding
	m := New(sample(), Options{Actions: Actions{
		Copy: func(f scan.Finding) error {
			copied = append(copied, f)
			return nil
		},
	}})

	m, _ = send(t, m, keyRune('c'))
	require.Len(t, copied, 1)
	assert.Equal(t, "a.go", copied[0].FilePath)
	assert.Equal(t, "copied alert for "+copied[0].Fingerprint.Short()+" to clipboard", m.status)
	assert.Len(t, m.Remaining(), 3, "copying leaves the finding open")
}

func TestCopyFailure(t *testing.T) {
	m := New(sample(), Options{Actions: Actions{
		Copy: func(scan.Finding) error { return errors.New("no terminal") },
	}})
	m, _ = send(t, m, keyRune('c'))
	assert.Equal(t, "copy failed: no terminal", m.status)
}

func TestCopyAlert(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")
	f := sample()[0]

	alert := Alert(f)
	assert.Contains(t, alert, "test-rule")
	assert.Contains(t, alert, "a.go:1")
	assert.Contains(t, alert, "AKI*****PLE")
	assert.Contains(t, alert, "looks secret")
	assert.NotContains(t, alert, secret)

	var buf bytes.Buffer
	require.NoError(t, CopyAlert(&buf, f))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\x1b]52;c;"), "OSC52 clipboard sequence")
	assert.Contains(t, out, base64.StdEncoding.EncodeToString([]byte(alert)))
	assert.NotContains(t, out, secret)
}

func TestScoreChart(t *testing.T) {
	findings := append(sample(), finding("d.go", 4, 100, secret))
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 0, 0, 1, 0, 2}, scoreHistogram(findings))
	assert.Equal(t, make([]float64, scoreBuckets), scoreHistogram(nil))

	assert.Empty(t, scoreChart(nil))
	assert.NotEmpty(t, scoreChart(findings))
	assert.Contains(t, New(findings, Options{}).View(), "scores 0")
}

func TestContextView(t *testing.T) {
	m := New(sample(), Options{Actions: Actions{
		Context: func(f scan.Finding) ([]ContextLine, error) {
			return []ContextLine{{Number: 1, Text: "key = " + f.Preview, Target: true}}, nil
		},
	}})

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.showContext)
	view := m.View()
	assert.Contains(t, view, "AKI*****PLE")
	assert.NotContains(t, view, secret)

	// Keys other than enter and q are ignored in the context view.
	m, _ = send(t, m, keyRune('j'))
	assert.True(t, m.showContext)
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.showContext)
}

func TestHelp(t *testing.T) {
	m := New(sample(), Options{})
	m, _ = send(t, m, keyRune('?'))
	require.True(t, m.showHelp)
	assert.Contains(t, m.View(), "strict mode")

	m, _ = send(t, m, keyRune('2'))
	assert.Len(t, m.visible, 3, "filter keys are ignored while help is open")

	m, _ = send(t, m, keyRune('?'))
	assert.False(t, m.showHelp)
}

func TestQuit(t *testing.T) {
	m := New(sample(), Options{})
	next, cmd := m.Update(keyRune('q'))
	assert.True(t, isQuit(cmd))
	assert.True(t, next.(Model).quitting)
}

func TestViewNeverShowsSecrets(t *testing.T) {
	m := New(sample(), Options{})
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	assert.Contains(t, view, "a.go:1")
	assert.Contains(t, view, "AKI*****PLE")
	for _, f := range sample() {
		assert.NotContains(t, view, f.MatchedText)
	}
}

func TestReadContext(t *testing.T) {
	root := t.TempDir()
	content := "one\ntwo\naws = \"" + secret + "\"\nfour\nother = \"" + secret + "\"\nsix\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "cfg.env"), []byte(content), 0644))

	f := finding("cfg.env", 3, 95, secret)
	lines, err := ReadContext(root, f, nil)
	require.NoError(t, err)

	require.Len(t, lines, 5)
	assert.Equal(t, 1, lines[0].Number)
	assert.Equal(t, 5, lines[4].Number)
	assert.True(t, lines[2].Target)
	assert.Equal(t, `aws = "AKI*****PLE"`, lines[2].Text)
	for _, l := range lines {
		assert.NotContains(t, l.Text, secret)
	}

	_, err = ReadContext(root, finding("missing.env", 1, 95, secret), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
