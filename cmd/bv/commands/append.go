package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"benchvault/pkg/benchdata"
	"benchvault/pkg/core"
	"benchvault/pkg/ingest"
	"benchvault/pkg/types"

	"github.com/spf13/cobra"
)

var (
	appendSuite      string
	appendTool       string
	appendCommitFile string
	appendDate       int64
	appendBranch     string
	appendParent     string
)

var appendCmd = &cobra.Command{
	Use:   "append [flags] <tool-output-file>",
	Short: "Record a benchmark run",
	Long: `Parse the output of a benchmark tool and append it to a suite as the run for one commit.
Use "-" to read the tool output from stdin.

The commit file is the JSON commit object of the CI event, for example the head_commit
of a GitHub push event (id, message, timestamp, url, author, committer).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if appendSuite == "" {
			return fmt.Errorf("suite name cannot be empty (use --suite)")
		}
		if appendCommitFile == "" {
			return fmt.Errorf("commit file is required (use --commit-file)")
		}
		out := cmd.OutOrStdout()
		ctx := context.Background()

		// 1. 读取 commit 元数据
		commit, err := readCommit(appendCommitFile)
		if err != nil {
			return err
		}
		if appendParent != "" {
			commit.Parent = types.CommitID(appendParent)
		}

		// 2. 解析工具输出
		benches, err := parseToolOutput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		date := appendDate
		if date == 0 {
			date = time.Now().UnixMilli()
		}
		record := core.RunRecord{
			Commit:  commit,
			Date:    date,
			Tool:    appendTool,
			Benches: benches,
		}

		// 3. 写入账本
		suite := types.SuiteName(appendSuite)
		if err := BV.Store.Append(ctx, suite, commit.ID, record); err != nil {
			return fmt.Errorf("failed to append run: %w", err)
		}
		fmt.Fprintf(out, "✅ Recorded %d benches for %s @ %s\n", len(benches), suite, commit.ID.Short())

		// 4. 移动分支指针 (可选)
		if appendBranch != "" {
			if err := BV.Store.SetBranchPointer(ctx, types.BranchName(appendBranch), commit.ID); err != nil {
				return fmt.Errorf("failed to move branch: %w", err)
			}
			fmt.Fprintf(out, "🔀 %s -> %s\n", appendBranch, commit.ID.Short())
		}
		return nil
	},
}

func readCommit(path string) (core.CommitInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.CommitInfo{}, fmt.Errorf("failed to read commit file: %w", err)
	}
	commit, err := benchdata.DecodeCommit(data)
	if err != nil {
		return commit, fmt.Errorf("commit file %s: %w", path, err)
	}
	return commit, nil
}

func parseToolOutput(stdin io.Reader, path string) ([]core.Bench, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open tool output: %w", err)
		}
		defer f.Close()
		r = f
	}
	benches, err := ingest.Parse(appendTool, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s output: %w", appendTool, err)
	}
	return benches, nil
}

func init() {
	appendCmd.Flags().StringVarP(&appendSuite, "suite", "s", "", "Suite name, e.g. \"Rust Benchmark\" (required)")
	appendCmd.Flags().StringVarP(&appendTool, "tool", "t", ingest.ToolGo, fmt.Sprintf("Tool that produced the output %v", ingest.Tools()))
	appendCmd.Flags().StringVar(&appendCommitFile, "commit-file", "", "JSON file with the commit object (required)")
	appendCmd.Flags().Int64Var(&appendDate, "date", 0, "Run date in epoch milliseconds (default now)")
	appendCmd.Flags().StringVarP(&appendBranch, "branch", "b", "", "Move this branch pointer to the commit after appending")
	appendCmd.Flags().StringVar(&appendParent, "parent", "", "Parent commit id, overrides the commit file")
	rootCmd.AddCommand(appendCmd)
}
