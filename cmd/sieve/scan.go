package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/diff"
	"github.com/fyrsmithlabs/sieve/internal/git"
	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/scan"
	"github.com/fyrsmithlabs/sieve/internal/tui"
)

var (
	scanStaged         bool
	scanSince          string
	scanDiffFile       string
	scanStrict         bool
	scanNoTUI          bool
	scanShowSuppressed bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanStaged, "staged", false, "scan lines added in the git index")
	scanCmd.Flags().StringVar(&scanSince, "since", "", "scan lines added since a git ref")
	scanCmd.Flags().StringVar(&scanDiffFile, "diff", "", "scan lines added in a unified diff file (- for stdin)")
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false, "report informational findings and fail on any finding")
	scanCmd.Flags().BoolVar(&scanNoTUI, "no-tui", false, "print the report even on a terminal")
	scanCmd.Flags().BoolVar(&scanShowSuppressed, "show-suppressed", false, "include baselined findings, marked as such")
	scanCmd.MarkFlagsMutuallyExclusive("staged", "since", "diff")
}

// scanCmd scans a tree or a diff
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a directory or git diff for secrets",
	Long: `Scan a directory tree, a single file, the staged git diff or a commit range
for secrets. A file is scanned alone and its directory holds the config,
baseline and cache.

On a terminal with human output, findings open in the interactive triage
view; otherwise the report is printed. The findings are cached in
.sieve_cache.json so "sieve repair --fix N" can refer to them by index.

Examples:
  # Scan the current directory
  sieve scan

  # Pre-commit hook: scan what is about to be committed
  sieve scan --staged --no-tui

  # Scan everything added since main, as SARIF
  sieve scan --since main --format sarif

  # Scan a diff produced elsewhere
  git diff HEAD~3 | sieve scan --diff -

  # Fail on any finding, including low-confidence ones
  sieve scan --strict`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	gitMode := scanStaged || scanSince != ""

	a, err := newApp(cmd, dirArg(args), gitMode)
	if err != nil {
		return err
	}
	defer a.close()

	orch := a.orchestrator(
		scan.WithInformational(a.cfg.Scan.Informational || scanStrict),
		scan.WithShowSuppressed(a.cfg.Scan.ShowSuppressed || scanShowSuppressed),
	)

	rep, err := scanTarget(cmd, a, orch)
	if err != nil {
		return err
	}

	if err := scan.WriteCache(a.cachePath(), scan.NewCache(a.root, rep)); err != nil {
		a.logger.Warn(ctx, "writing findings cache", zap.Error(err))
	}

	var n int
	if useTUI(cmd, a) && blocking(rep, a.cfg.Scan.HighConfidence, true) > 0 {
		if n, err = triage(ctx, a, rep); err != nil {
			return err
		}
	} else {
		if err := writeReport(cmd, a, rep); err != nil {
			return err
		}
		n = blocking(rep, a.cfg.Scan.HighConfidence, scanStrict)
	}

	if n > 0 {
		return &exitErr{code: exitFindings}
	}
	return nil
}

func scanTarget(cmd *cobra.Command, a *app, orch *scan.Orchestrator) (*scan.Report, error) {
	ctx := cmd.Context()
	var (
		text string
		err  error
	)
	switch {
	case scanStaged:
		text, err = git.StagedDiff(ctx, a.root)
	case scanSince != "":
		text, err = git.RangeDiff(ctx, a.root, scanSince)
	case scanDiffFile != "":
		return scanDiffInput(cmd, orch)
	default:
		return orch.ScanTree(ctx, a.target)
	}
	if err != nil {
		return nil, err
	}
	if branch, err := git.DetectBranch(a.root); err == nil {
		a.logger.Info(ctx, "scanning git changes",
			zap.String("branch", branch),
			zap.Bool("staged", scanStaged),
			zap.String("since", scanSince))
	}
	return orch.ScanDiffText(ctx, text)
}

// scanDiffInput scans the diff named by --diff. Its paths are taken as
// relative to the scanned directory.
func scanDiffInput(cmd *cobra.Command, orch *scan.Orchestrator) (*scan.Report, error) {
	in := cmd.InOrStdin()
	if scanDiffFile != "-" {
		f, err := os.Open(scanDiffFile)
		if err != nil {
			return nil, fmt.Errorf("opening diff: %w", err)
		}
		defer f.Close()
		in = f
	}
	hunks, errs, err := diff.ParseReader(in)
	if err != nil {
		return nil, err
	}
	return orch.ScanDiff(cmd.Context(), hunks, errs...)
}

func writeReport(cmd *cobra.Command, a *app, rep *scan.Report) error {
	return report.Write(cmd.OutOrStdout(), a.format, rep, a.reportOptions())
}

func useTUI(cmd *cobra.Command, a *app) bool {
	if scanNoTUI || a.format != report.FormatHuman {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && isatty.IsTerminal(out.Fd())
}

// triage runs the interactive view over the unbaselined findings and
// returns how many blocking findings remain when it exits.
func triage(ctx context.Context, a *app, rep *scan.Report) (int, error) {
	var open []scan.Finding
	for _, f := range rep.Findings {
		if !f.Baselined {
			open = append(open, f)
		}
	}

	final, err := tui.Run(open, tui.Options{
		Strict:  scanStrict,
		Actions: triageActions(ctx, a, rep),
	}, tea.WithAltScreen(), tea.WithContext(ctx))
	if err != nil {
		return 0, err
	}

	ignored, repaired := final.Counts()
	a.logger.Info(ctx, "triage finished",
		zap.Int("remaining", len(final.Remaining())),
		zap.Int("baselined", ignored),
		zap.Int("repaired", repaired),
		zap.Bool("strict", final.Strict()))
	return final.Blocking(), nil
}

// triageActions wires the triage keys to the baseline, the repair engine and
// the working tree. Findings are re-located in their file first, as
// "sieve repair" does, so diff-mode line numbers never reach the file.
func triageActions(ctx context.Context, a *app, rep *scan.Report) tui.Actions {
	engine := a.repairEngine(a.root, false)
	orch := a.orchestrator(scan.WithInformational(true))

	return tui.Actions{
		Ignore: func(f scan.Finding) error {
			a.baseline.AddFinding(f, "accepted in triage")
			return a.baseline.Save(a.baselinePath)
		},
		Repair: func(f scan.Finding) repair.Result {
			live, err := orch.Locate(ctx, a.root, f)
			if err != nil {
				if errors.Is(err, scan.ErrCacheMismatch) {
					return repair.Result{FilePath: f.FilePath, Skipped: []repair.Skip{
						{Fingerprint: f.Fingerprint, Line: f.Line, Reason: repair.SkipStale},
					}}
				}
				return repair.Result{FilePath: f.FilePath, Err: err}
			}
			results := engine.Repair(ctx, []scan.Finding{live})
			if len(results) == 0 {
				return repair.Result{FilePath: f.FilePath, Err: fmt.Errorf("no repair result for %s", f.FilePath)}
			}
			return results[0]
		},
		Context: func(f scan.Finding) ([]tui.ContextLine, error) {
			if live, err := orch.Locate(ctx, a.root, f); err == nil {
				f = live
			}
			return tui.ReadContext(a.root, f, rep.Findings)
		},
		Copy: func(f scan.Finding) error {
			return tui.CopyAlert(os.Stderr, f)
		},
	}
}
