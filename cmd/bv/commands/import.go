package commands

import (
	"context"
	"fmt"
	"os"

	"benchvault/pkg/benchdata"

	"github.com/spf13/cobra"
)

var importVerbose bool

var importCmd = &cobra.Command{
	Use:   "import <data.js>",
	Short: "Merge runs from another benchmark document",
	Long: `Import every run and branch pointer of an existing data.js (or plain JSON) document.
Runs that already exist for the same suite and commit are skipped and reported.
The whole import is applied in one write; nothing changes if any run is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		// 1. 解析来源文档
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		src, err := benchdata.Decode(f)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", args[0], err)
		}

		// 2. 合并
		report, err := BV.Store.Import(context.Background(), src)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		// 3. 报告
		fmt.Fprintf(out, "📥 Imported %d runs, %d branch pointers\n", report.Added, report.Branches)
		if len(report.Duplicates) > 0 {
			fmt.Fprintf(out, "⚠️  Skipped %d runs that already exist\n", len(report.Duplicates))
			if importVerbose {
				for _, d := range report.Duplicates {
					fmt.Fprintf(out, "   %s @ %s\n", d.Suite, d.Commit.Short())
				}
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVarP(&importVerbose, "verbose", "v", false, "List skipped duplicates")
	rootCmd.AddCommand(importCmd)
}
