package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsMetrics bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a summary of the stored history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		doc := BV.Store.Snapshot()

		fmt.Fprintf(out, "Repository:  %s\n", doc.RepoURL)
		if doc.LastUpdate > 0 {
			fmt.Fprintf(out, "Last update: %s\n", time.UnixMilli(doc.LastUpdate).UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(out, "Branches:    %d\n", len(doc.Branches))
		fmt.Fprintf(out, "Runs:        %d\n", doc.RunCount())
		for _, suite := range doc.Suites() {
			n := len(doc.Entries[suite])
			fmt.Fprintf(out, "  %-30s %d runs\n", suite, n)
			BV.Metrics.SetRuns(suite.String(), n)
		}

		// Prometheus 文本格式
		if statsMetrics {
			fmt.Fprintln(out)
			return BV.Metrics.WriteText(out)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "Also print the process metrics in Prometheus text format")
	rootCmd.AddCommand(statsCmd)
}
