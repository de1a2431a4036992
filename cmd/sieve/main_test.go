package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sieve/internal/baseline"
	"github.com/fyrsmithlabs/sieve/internal/config"
	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/rules"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

const awsKey = "AKIA1234567890EXAMPLE"

type jsonReport struct {
	Findings []struct {
		Index       int    `json:"index"`
		RuleID      string `json:"rule_id"`
		FilePath    string `json:"file_path"`
		Line        int    `json:"line"`
		Fingerprint string `json:"fingerprint"`
		Preview     string `json:"preview"`
		Baselined   bool   `json:"baselined"`
	} `json:"findings"`
	FilesScanned int `json:"files_scanned"`
}

// resetFlags restores every flag to its default. Cobra keeps parsed values
// and Changed state between executions of the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func leakyRepo(t *testing.T) string {
	return writeRepo(t, map[string]string{
		"app/config.py": "import os\naws_secret = \"" + awsKey + "\"\n",
		"README.md":     "# demo\n",
	})
}

func decodeReport(t *testing.T, out string) jsonReport {
	t.Helper()
	var r jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func findCommand(t *testing.T, path ...string) *cobra.Command {
	t.Helper()
	cmd, rest, err := rootCmd.Find(path)
	require.NoError(t, err)
	require.Empty(t, rest)
	return cmd
}

func TestCommands_Exist(t *testing.T) {
	tests := [][]string{
		{"scan"},
		{"baseline"},
		{"baseline", "generate"},
		{"baseline", "check"},
		{"baseline", "list"},
		{"baseline", "remove"},
		{"repair"},
		{"serve"},
		{"watch"},
		{"rules"},
		{"version"},
	}
	for _, path := range tests {
		cmd := findCommand(t, path...)
		assert.Equal(t, path[len(path)-1], cmd.Name())
		assert.NotEmpty(t, cmd.Short, "%v should have a Short description", path)
	}
}

func TestCommands_Flags(t *testing.T) {
	tests := []struct {
		path  []string
		flags []string
	}{
		{[]string{"scan"}, []string{"staged", "since", "diff", "strict", "no-tui", "show-suppressed"}},
		{[]string{"baseline", "generate"}, []string{"note"}},
		{[]string{"repair"}, []string{"fix", "dry-run"}},
		{[]string{"serve"}, []string{"host", "port"}},
		{[]string{"watch"}, []string{"strict"}},
	}
	for _, tt := range tests {
		cmd := findCommand(t, tt.path...)
		for _, name := range tt.flags {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%v missing --%s", tt.path, name)
		}
	}
	for _, name := range []string{"config", "verbose", "format", "metrics-file"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFindings, exitCode(&exitErr{code: exitFindings}))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitError, exitCode(&exitErr{code: exitError, err: errors.New("repair failed")}))
}

func TestScan_Findings(t *testing.T) {
	root := leakyRepo(t)

	out, err := execute(t, "scan", "--format", "json", root)
	require.Error(t, err)
	assert.Equal(t, exitFindings, exitCode(err))
	assert.NotContains(t, out, awsKey)

	r := decodeReport(t, out)
	assert.Equal(t, 2, r.FilesScanned)
	require.Len(t, r.Findings, 1)
	f := r.Findings[0]
	assert.Equal(t, 1, f.Index)
	assert.Equal(t, "app/config.py", f.FilePath)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, "AKI*****PLE", f.Preview)

	cache, err := scan.ReadCache(filepath.Join(root, scan.DefaultCacheFile))
	require.NoError(t, err)
	require.Len(t, cache.Findings, 1)
	assert.Equal(t, f.Fingerprint, cache.Findings[0].Fingerprint.String())

	raw, err := os.ReadFile(filepath.Join(root, scan.DefaultCacheFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), awsKey)
}

func TestScan_HumanOutput(t *testing.T) {
	out, err := execute(t, "scan", "--no-tui", leakyRepo(t))
	assert.Equal(t, exitFindings, exitCode(err))
	assert.Contains(t, out, "app/config.py:2")
	assert.Contains(t, out, "AKI*****PLE")
	assert.NotContains(t, out, awsKey)
}

func TestScan_Clean(t *testing.T) {
	root := writeRepo(t, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})

	out, err := execute(t, "scan", root)
	require.NoError(t, err)
	assert.Contains(t, out, "no secrets found")
}

func TestScan_CorruptBaseline(t *testing.T) {
	root := leakyRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, baseline.DefaultFile), []byte("{not json"), 0644))

	_, err := execute(t, "scan", root)
	require.Error(t, err)
	assert.ErrorIs(t, err, baseline.ErrCorrupt)
	assert.Equal(t, exitError, exitCode(err))
}

func TestScan_DiffFile(t *testing.T) {
	root := writeRepo(t, map[string]string{"README.md": "# demo\n"})
	patch := "diff --git a/app/config.py b/app/config.py\n" +
		"--- a/app/config.py\n" +
		"+++ b/app/config.py\n" +
		"@@ -1,0 +2 @@\n" +
		"+aws_secret = \"" + awsKey + "\"\n"
	patchPath := filepath.Join(t.TempDir(), "change.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte(patch), 0644))

	out, err := execute(t, "scan", "--format", "json", "--diff", patchPath, root)
	assert.Equal(t, exitFindings, exitCode(err))
	assert.NotContains(t, out, awsKey)

	r := decodeReport(t, out)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, "app/config.py", r.Findings[0].FilePath)
	assert.Equal(t, 2, r.Findings[0].Line)
}

func TestScan_SingleFile(t *testing.T) {
	root := leakyRepo(t)

	out, err := execute(t, "scan", "--no-tui", "--format", "json", filepath.Join(root, "app", "config.py"))
	assert.Equal(t, exitFindings, exitCode(err))

	r := decodeReport(t, out)
	assert.Equal(t, 1, r.FilesScanned)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, "config.py", r.Findings[0].FilePath)
	assert.Equal(t, 2, r.Findings[0].Line)

	cache, err := scan.ReadCache(filepath.Join(root, "app", scan.DefaultCacheFile))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app"), cache.Root)
}

func TestTriageActions_DiffFinding(t *testing.T) {
	root := writeRepo(t, map[string]string{"new.py": "aws = \"" + awsKey + "\"\n"})
	text := "diff --git a/new.py b/new.py\n" +
		"new file mode 100644\n" +
		"--- /dev/null\n" +
		"+++ b/new.py\n" +
		"@@ -0,0 +1 @@\n" +
		"+aws = \"" + awsKey + "\"\n"

	resetFlags(rootCmd)
	scanCmd.SetContext(context.Background())
	a, err := newApp(scanCmd, root, false)
	require.NoError(t, err)
	defer a.close()

	ctx := context.Background()
	rep, err := a.orchestrator().ScanDiffText(ctx, text)
	require.NoError(t, err)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]

	actions := triageActions(ctx, a, rep)

	lines, err := actions.Context(f)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Target)
	assert.Equal(t, 1, lines[0].Number)
	assert.NotContains(t, lines[0].Text, awsKey)

	res := actions.Repair(f)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 1, res.Repaired)

	data, err := os.ReadFile(filepath.Join(root, "new.py"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), awsKey)
	assert.Contains(t, string(data), "REDACTED_SECRET")

	// The secret is gone, so a second attempt is stale rather than an error.
	res = actions.Repair(f)
	require.NoError(t, res.Err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, repair.SkipStale, res.Skipped[0].Reason)
}

func TestScan_MetricsFile(t *testing.T) {
	root := leakyRepo(t)
	path := filepath.Join(t.TempDir(), "sieve.prom")

	_, err := execute(t, "scan", "--no-tui", "--metrics-file", path, root)
	assert.Equal(t, exitFindings, exitCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sieve_scans_total")
	assert.NotContains(t, string(data), awsKey)
}

func TestScan_StagedAndSinceExclusive(t *testing.T) {
	_, err := execute(t, "scan", "--staged", "--since", "main", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitError, exitCode(err))
}

func TestScan_UnknownFormat(t *testing.T) {
	_, err := execute(t, "scan", "--format", "xml", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestBaseline_Lifecycle(t *testing.T) {
	root := leakyRepo(t)

	out, err := execute(t, "baseline", "generate", "--note", "legacy fixture", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 finding(s)")

	store, err := baseline.Load(filepath.Join(root, baseline.DefaultFile))
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	entry := store.Entries()[0]
	assert.Equal(t, "legacy fixture", entry.Note)
	assert.Equal(t, "app/config.py", entry.FilePath)

	// Baselined findings no longer fail the scan, and the baseline file
	// itself is never scanned.
	_, err = execute(t, "scan", "--no-tui", root)
	require.NoError(t, err)
	_, err = execute(t, "baseline", "check", root)
	require.NoError(t, err)

	out, err = execute(t, "scan", "--format", "json", "--show-suppressed", root)
	require.NoError(t, err)
	r := decodeReport(t, out)
	require.Len(t, r.Findings, 1)
	assert.True(t, r.Findings[0].Baselined)

	out, err = execute(t, "baseline", "list", root)
	require.NoError(t, err)
	assert.Contains(t, out, entry.Fingerprint.Short())
	assert.Contains(t, out, "legacy fixture")

	out, err = execute(t, "baseline", "list", "--format", "json", root)
	require.NoError(t, err)
	var listed []baseline.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	out, err = execute(t, "baseline", "remove", entry.Fingerprint.Short(), root)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	_, err = execute(t, "baseline", "check", "--format", "json", root)
	assert.Equal(t, exitFindings, exitCode(err))
}

func TestBaseline_RemoveUnknown(t *testing.T) {
	_, err := execute(t, "baseline", "remove", "deadbeef", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no unique baseline entry")
}

func TestRepair(t *testing.T) {
	t.Run("without a cached scan", func(t *testing.T) {
		_, err := execute(t, "repair", t.TempDir())
		assert.ErrorIs(t, err, scan.ErrNoCache)
	})

	t.Run("dry run leaves the file", func(t *testing.T) {
		root := leakyRepo(t)
		_, err := execute(t, "scan", "--no-tui", root)
		require.Equal(t, exitFindings, exitCode(err))

		out, err := execute(t, "repair", "--dry-run", root)
		require.NoError(t, err)
		assert.Contains(t, out, "would repair app/config.py (1)")

		data, err := os.ReadFile(filepath.Join(root, "app", "config.py"))
		require.NoError(t, err)
		assert.Contains(t, string(data), awsKey)
	})

	t.Run("fix by index", func(t *testing.T) {
		root := leakyRepo(t)
		_, err := execute(t, "scan", "--no-tui", root)
		require.Equal(t, exitFindings, exitCode(err))

		out, err := execute(t, "repair", "--fix", "1", root)
		require.NoError(t, err)
		assert.Contains(t, out, "repaired app/config.py (1)")

		data, err := os.ReadFile(filepath.Join(root, "app", "config.py"))
		require.NoError(t, err)
		assert.Equal(t, "import os\naws_secret = \"REDACTED_SECRET\"\n", string(data))

		// The cached finding is gone from the file now.
		out, err = execute(t, "repair", "--fix", "1", root)
		require.NoError(t, err)
		assert.Contains(t, out, "0 repaired")

		_, err = execute(t, "scan", "--no-tui", root)
		require.NoError(t, err)
	})

	t.Run("index out of range", func(t *testing.T) {
		root := leakyRepo(t)
		_, err := execute(t, "scan", "--no-tui", root)
		require.Equal(t, exitFindings, exitCode(err))

		_, err = execute(t, "repair", "--fix", "5", root)
		require.Error(t, err)
	})
}

func TestRules(t *testing.T) {
	out, err := execute(t, "rules", "--format", "json")
	require.NoError(t, err)

	var rows []ruleRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.ID] = true
		assert.NotEmpty(t, r.Kind)
	}
	assert.True(t, ids[rules.AWSAccessKeyID], "built-in AWS rule listed")

	out, err = execute(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "rule(s)")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sieve dev\n", out)
}

func TestIgnorePatterns(t *testing.T) {
	a := &app{root: "/repo", baselinePath: "/repo/.sieve.baseline.json", cfg: config.Default()}
	a.cfg.Scan.ExtraIgnore = []string{"fixtures/"}
	a.cfg.Scan.CacheFile = "/elsewhere/cache.json"

	assert.Equal(t, []string{"fixtures/", "/.sieve.baseline.json"}, a.ignorePatterns())
}
