package commands

import (
	"context"
	"fmt"
	"time"

	"benchvault/pkg/meta"
	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var seriesCmd = &cobra.Command{
	Use:   "series <suite> <bench>",
	Short: "Print the values of one bench over time",
	Long: `Print one line per run containing the bench, oldest first.
With the sql backend the series is queried from the database directly.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		suite, bench := types.SuiteName(args[0]), args[1]

		points, err := loadSeries(context.Background(), suite, bench)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Fprintf(out, "No values for %q in %s.\n", bench, suite)
			return nil
		}
		for _, p := range points {
			fmt.Fprintf(out, "%s  %s  %g %s\n",
				time.UnixMilli(p.Date).UTC().Format(time.RFC3339),
				types.CommitID(p.CommitID).Short(), p.Value, p.Unit)
		}
		return nil
	},
}

// loadSeries 有 SQL 后端时直接查询，否则从内存快照里计算
func loadSeries(ctx context.Context, suite types.SuiteName, bench string) ([]meta.SeriesPoint, error) {
	if BV.Repo != nil {
		return BV.Repo.Series(ctx, suite, bench)
	}

	seq, err := BV.Store.GetHistory(suite)
	if err != nil {
		return nil, err
	}
	var points []meta.SeriesPoint
	for r := range seq {
		b, ok := r.Bench(bench)
		if !ok {
			continue
		}
		points = append(points, meta.SeriesPoint{
			CommitID: r.Commit.ID.String(),
			Date:     r.Date,
			Value:    b.Value,
			Unit:     b.Unit,
		})
	}
	return points, nil
}

func init() {
	rootCmd.AddCommand(seriesCmd)
}
