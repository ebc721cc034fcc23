package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name] [commit]",
	Short: "List or move branch pointers",
	Long: `Without arguments, list every branch pointer.
With a name and a commit, move the branch to that commit. The commit must already
have a recorded run in some suite.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <name> <commit>, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		// 1. 列出
		if len(args) == 0 {
			branches := BV.Store.Branches()
			if len(branches) == 0 {
				fmt.Fprintln(out, "No branches yet.")
				return nil
			}
			for _, name := range slices.Sorted(maps.Keys(branches)) {
				fmt.Fprintf(out, "  %-20s %s\n", name, branches[name])
			}
			return nil
		}

		// 2. 移动
		name, commit := types.BranchName(args[0]), types.CommitID(args[1])
		if err := BV.Store.SetBranchPointer(context.Background(), name, commit); err != nil {
			return fmt.Errorf("failed to move branch %s: %w", name, err)
		}
		fmt.Fprintf(out, "🔀 %s -> %s\n", name, commit.Short())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(branchCmd)
}
