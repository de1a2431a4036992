package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sieve/internal/report"
	"github.com/fyrsmithlabs/sieve/internal/rules"
)

func init() {
	rootCmd.AddCommand(rulesCmd)
}

// rulesCmd lists the active detectors
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the active detection rules",
	Long: `List the detection rules after rules.disabled and rules.gitleaks from
the config are applied. Pattern rules are tried before heuristics, and the
first pattern to match a span wins.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

type ruleRow struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Confidence  int    `json:"confidence,omitempty"`
	Description string `json:"description"`
}

func runRules(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, ".", false)
	if err != nil {
		return err
	}
	defer a.close()

	rows := ruleRows(a.scanner.Rules())
	if a.format == report.FormatJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCONFIDENCE\tDESCRIPTION")
	for _, r := range rows {
		conf := "-"
		if r.Confidence > 0 {
			conf = fmt.Sprint(r.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, conf, r.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	cmd.Printf("\n%d rule(s)\n", len(rows))
	return nil
}

func ruleRows(set *rules.Set) []ruleRow {
	rows := make([]ruleRow, 0, set.Len())
	for _, r := range set.Rules() {
		rows = append(rows, ruleRow{
			ID:          r.ID,
			Kind:        r.Kind.String(),
			Confidence:  r.ConfidenceBase,
			Description: r.Description,
		})
	}
	return rows
}
