package commands

import (
	"fmt"
	"math"

	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var compareThreshold float64

var compareCmd = &cobra.Command{
	Use:   "compare <suite> <base-commit> <head-commit>",
	Short: "Compare two runs of a suite",
	Long: `Print the relative change of every bench present in both runs.
Changes larger than --threshold percent are marked.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		diffs, err := BV.Store.Compare(types.SuiteName(args[0]), types.CommitID(args[1]), types.CommitID(args[2]))
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Fprintln(out, "No common benches.")
			return nil
		}
		for _, d := range diffs {
			mark := "  "
			if compareThreshold > 0 && math.Abs(d.Delta) >= compareThreshold {
				mark = "❗"
			}
			fmt.Fprintf(out, "%s %s\n", mark, d)
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().Float64Var(&compareThreshold, "threshold", 0, "Mark changes at or above this percentage")
	rootCmd.AddCommand(compareCmd)
}
