package commands

import (
	"fmt"

	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:   "latest <suite> <branch>",
	Short: "Show the run at the head of a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		rec, err := BV.Store.GetLatest(types.SuiteName(args[0]), types.BranchName(args[1]))
		if err != nil {
			return err
		}

		printRunLog(out, rec)
		for _, b := range rec.Benches {
			fmt.Fprintf(out, "  %-40s %14g %-10s %s\n", b.Name, b.Value, b.Unit, b.Range)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(latestCmd)
}
