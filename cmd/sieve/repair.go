package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/repair"
	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

var (
	repairFix    int
	repairDryRun bool
)

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().IntVar(&repairFix, "fix", 0, "repair only the finding with this index from the last scan")
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "validate the redactions without writing files")
}

// repairCmd redacts cached findings in place
var repairCmd = &cobra.Command{
	Use:   "repair [path]",
	Short: "Redact findings from the last scan in place",
	Long: `Replace secrets found by the last "sieve scan" with a placeholder.

Each cached finding is re-located in its file before it is replaced; a
finding whose line changed since the scan is skipped as stale. Files are
rewritten atomically and keep their permissions.

Examples:
  # Redact every finding from the last scan
  sieve repair

  # Redact only finding #2 as numbered in the scan output
  sieve repair --fix 2

  # Check what would change
  sieve repair --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepair,
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	cache, err := scan.ReadCache(a.cachePath())
	if err != nil {
		return err
	}

	entries := cache.Findings
	if repairFix != 0 {
		e, err := cache.Entry(repairFix)
		if err != nil {
			return err
		}
		entries = []scan.CacheEntry{e}
	}
	if len(entries) == 0 {
		cmd.Println("Nothing to repair.")
		return nil
	}

	// Cached entries hold no secret text; rescan each location for it.
	orch := a.orchestrator(scan.WithInformational(true))
	var (
		findings []scan.Finding
		stale    []error
	)
	for _, e := range entries {
		f, err := orch.Rehydrate(ctx, cache.Root, e)
		if err != nil {
			if !errors.Is(err, scan.ErrCacheMismatch) {
				return err
			}
			a.logger.Warn(ctx, "skipping stale finding",
				zap.Int("index", e.Index),
				zap.String("file", e.FilePath),
				zap.Int("line", e.Line))
			stale = append(stale, fmt.Errorf("#%d: %w", e.Index, err))
			continue
		}
		findings = append(findings, f)
	}

	results := a.repairEngine(cache.Root, repairDryRun).Repair(ctx, findings)
	if err := report.WriteRepair(cmd.OutOrStdout(), a.format, results); err != nil {
		return err
	}
	for _, err := range stale {
		cmd.PrintErrf("skipped %v\n", err)
	}

	if s := repair.Summarize(results); s.Failed > 0 {
		return &exitErr{code: exitError, err: fmt.Errorf("%d of %d file(s) could not be repaired", s.Failed, s.Files)}
	}
	return nil
}
