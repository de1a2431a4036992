package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

var baselineNote string

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineGenerateCmd)
	baselineCmd.AddCommand(baselineCheckCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineRemoveCmd)

	baselineGenerateCmd.Flags().StringVar(&baselineNote, "note", "", "note recorded with each new entry")
}

// baselineCmd groups baseline management commands
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage accepted findings",
	Long: `Manage the baseline of accepted findings (.sieve.baseline.json).

A baselined finding is identified by its fingerprint, a digest of the rule,
the normalized secret and the file path. Baselined findings are hidden from
scans until the secret or its location changes.`,
}

var baselineGenerateCmd = &cobra.Command{
	Use:   "generate [path]",
	Short: "Accept every current finding",
	Long: `Scan a directory and add every finding to the baseline.

Examples:
  # Adopt sieve on an existing repository
  sieve baseline generate --note "pre-existing test fixtures"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBaselineGenerate,
}

var baselineCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Fail if findings outside the baseline exist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBaselineCheck,
}

var baselineListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List baseline entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBaselineList,
}

var baselineRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint> [path]",
	Short: "Remove an entry by fingerprint or unique prefix",
	Long: `Remove an entry from the baseline. The fingerprint may be abbreviated to
any unique prefix, such as the 12 characters shown by "baseline list".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBaselineRemove,
}

func runBaselineGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.orchestrator(scan.WithInformational(true)).ScanTree(ctx, a.target)
	if err != nil {
		return err
	}

	added := 0
	for _, f := range rep.Findings {
		if a.baseline.AddFinding(f, baselineNote) {
			added++
		}
	}
	if err := a.baseline.Save(a.baselinePath); err != nil {
		return err
	}
	a.metrics.SetBaselineEntries(a.baseline.Len())
	a.logger.Info(ctx, "baseline generated",
		zap.String("path", a.baselinePath),
		zap.Int("added", added),
		zap.Int("entries", a.baseline.Len()))

	cmd.Printf("Added %d finding(s) to %s (%d entries)\n", added, a.baselinePath, a.baseline.Len())
	return nil
}

func runBaselineCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.orchestrator().ScanTree(cmd.Context(), a.target)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), a.format, rep, a.reportOptions()); err != nil {
		return err
	}
	if blocking(rep, a.cfg.Scan.HighConfidence, false) > 0 {
		return &exitErr{code: exitFindings}
	}
	return nil
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	entries := a.baseline.Entries()
	if a.format == report.FormatJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		cmd.Printf("No entries in %s\n", a.baselinePath)
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tADDED\tRULE\tFILE\tNOTE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Fingerprint.Short(), e.AddedAt.Format(time.DateOnly), dash(e.RuleID), dash(e.FilePath), e.Note)
	}
	return tw.Flush()
}

func runBaselineRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, dirArg(args[1:]), false)
	if err != nil {
		return err
	}
	defer a.close()

	e, ok := a.baseline.Resolve(args[0])
	if !ok || args[0] == "" {
		return fmt.Errorf("no unique baseline entry matches %q", args[0])
	}
	a.baseline.Remove(e.Fingerprint)
	if err := a.baseline.Save(a.baselinePath); err != nil {
		return err
	}
	a.logger.Info(cmd.Context(), "baseline entry removed", zap.String("fingerprint", e.Fingerprint.Short()))
	cmd.Printf("Removed %s\n", e.Fingerprint.Short())
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
