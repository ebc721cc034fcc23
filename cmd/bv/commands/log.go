package commands

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"benchvault/pkg/core"
	"benchvault/pkg/history"
	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var (
	logBranch string
	logLimit  int
)

var logCmd = &cobra.Command{
	Use:   "log <suite>",
	Short: "Show the run history of a suite",
	Long: `Display the runs of a suite, newest first.
With --branch, only runs on the ancestry of the branch head are shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		suite := types.SuiteName(args[0])

		// 1. 查询 (结果按 date 升序)
		opts := []history.HistoryOption{history.WithLimit(logLimit)}
		if logBranch != "" {
			opts = append(opts, history.WithBranch(types.BranchName(logBranch)))
		}
		seq, err := BV.Store.GetHistory(suite, opts...)
		if errors.Is(err, core.ErrNotFound) {
			fmt.Fprintf(out, "No runs yet (%v).\n", err)
			return nil
		}
		if err != nil {
			return err
		}

		// 2. 倒序输出，仿 git log
		runs := slices.Collect(seq)
		slices.Reverse(runs)
		for _, r := range runs {
			printRunLog(out, r)
		}
		return nil
	},
}

// printRunLog 格式化输出
func printRunLog(w io.Writer, r core.RunRecord) {
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)

	fmt.Fprintf(w, "%srun %s%s\n", colorYellow, r.Commit.ID, colorReset)
	fmt.Fprintf(w, "Author: %s\n", r.Commit.Author.Name)
	fmt.Fprintf(w, "Date:   %s\n", r.DateTime().UTC().Format(time.RFC1123))
	fmt.Fprintf(w, "Tool:   %s (%d benches)\n", r.Tool, len(r.Benches))
	fmt.Fprintf(w, "\n    %s\n\n", r.Commit.Message)
}

func init() {
	logCmd.Flags().StringVarP(&logBranch, "branch", "b", "", "Only follow the ancestry of this branch")
	logCmd.Flags().IntVarP(&logLimit, "max-count", "n", 0, "Limit the number of runs (0 = all)")
	rootCmd.AddCommand(logCmd)
}
