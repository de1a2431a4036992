package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/scan"
	"github.com/fyrsmithlabs/sieve/internal/watch"
)

var watchStrict bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchStrict, "strict", false, "report informational findings too")
}

// watchCmd rescans files as they change
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rescan files as they change",
	Long: `Watch a directory and rescan files as they are written.

Changes are coalesced for the configured debounce period (watch.debounce,
default 300ms) and each batch is reported as it completes. Ignored
directories such as node_modules and .git are not watched.

Examples:
  # Watch the current directory
  sieve watch

  # Stream JSON reports
  sieve watch --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd, dirArg(args), false)
	if err != nil {
		return err
	}
	defer a.close()

	orch := a.orchestrator(scan.WithInformational(a.cfg.Scan.Informational || watchStrict))
	w, err := watch.New(a.target, orch,
		watch.WithDebounce(a.cfg.Watch.Debounce.Duration()),
		watch.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	cmd.PrintErrf("Watching %s (ctrl+c to stop)\n", a.target)

	for ev := range w.Events() {
		if ev.Err != nil {
			a.logger.Error(ctx, "rescan failed", zap.Strings("paths", ev.Paths), zap.Error(ev.Err))
			continue
		}
		if a.format == report.FormatHuman {
			cmd.Printf("%s  %d file(s) changed\n", ev.At.Format(time.TimeOnly), len(ev.Paths))
		}
		if err := report.Write(cmd.OutOrStdout(), a.format, ev.Report, a.reportOptions()); err != nil {
			return err
		}
	}
	return nil
}
