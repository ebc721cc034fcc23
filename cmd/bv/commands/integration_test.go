package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"benchvault/pkg/app"
	"benchvault/pkg/benchdata"
	"benchvault/pkg/core"
	"benchvault/pkg/ingest"
	"benchvault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goOutput = `goos: linux
goarch: amd64
BenchmarkEncode-8   	 1000000	      1000 ns/op	     256 B/op	       4 allocs/op
BenchmarkDecode-8   	 2000000	       500 ns/op
PASS
`

// setupIntegrationEnv 在临时目录里搭建 真实文件系统 的账本
func setupIntegrationEnv(t *testing.T) string {
	// 1. 准备临时工作目录
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// 2. 配置
	viper.Reset()
	viper.Set("storage.type", app.StorageDisk)
	viper.Set("storage.path", filepath.Join(".bv", "data.js"))
	viper.Set("repo.url", "https://github.com/example/project")
	viper.Set("document.identifier", benchdata.DefaultIdentifier)

	// 3. 创建空账本
	run(t, initCmd)

	// 4. 【关键】注入全局变量 BV
	// 因为 cmd 包依赖全局变量 BV，我们在测试里临时覆盖它
	a, err := app.NewApp(context.Background(), nil)
	require.NoError(t, err)
	BV = a

	t.Cleanup(func() {
		a.Close()
		BV = nil
		viper.Reset()
		resetFlags()
	})
	return tmpDir
}

// resetFlags 把全局 flag 变量恢复成默认值
func resetFlags() {
	appendSuite, appendTool, appendCommitFile = "", ingest.ToolGo, ""
	appendDate, appendBranch, appendParent = 0, "", ""
	logBranch, logLimit = "", 0
	exportOut = ""
	importVerbose = false
	statsMetrics = false
	compareThreshold = 0
}

// run 执行命令并返回标准输出
func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := tryRun(cmd, args...)
	require.NoError(t, err, "command %s %v", cmd.Name(), args)
	return out
}

func tryRun(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	defer cmd.SetOut(nil)
	defer cmd.SetErr(nil)
	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func writeCommitFile(t *testing.T, dir string, id, parent string) string {
	t.Helper()
	body := `{
  "author": {"name": "Alice", "username": "alice", "email": "alice@example.com"},
  "committer": {"name": "GitHub", "username": "web-flow"},
  "id": "` + id + `",
  "message": "change ` + id + `",
  "timestamp": "2022-06-14T17:01:04+02:00",
  "url": "https://github.com/example/project/commit/` + id + `",
  "parent": "` + parent + `"
}`
	path := filepath.Join(dir, id+".json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// appendRun 模拟: bv append --suite ... --commit-file ... --date ... --branch ... out.txt
func appendRun(t *testing.T, dir, id, parent string, date int64, branch string) string {
	t.Helper()
	output := filepath.Join(dir, "bench.txt")
	require.NoError(t, os.WriteFile(output, []byte(goOutput), 0644))

	resetFlags()
	appendSuite = "Go Benchmark"
	appendCommitFile = writeCommitFile(t, dir, id, parent)
	appendDate = date
	appendBranch = branch
	return run(t, appendCmd, output)
}

func TestIntegration_Init(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	// 空账本已写出
	raw, err := os.ReadFile(filepath.Join(tmpDir, ".bv", "data.js"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "window.BENCHMARK_DATA = "))

	doc, err := benchdata.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/example/project", doc.RepoURL)
	assert.Empty(t, doc.Entries)

	// 再次 init 不覆盖
	out := run(t, initCmd)
	assert.Contains(t, out, "already exists")
}

func TestIntegration_AppendFlow(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	// 1. 两次 append，并移动 main
	out := appendRun(t, tmpDir, "aaaaaaaaaa", "", 1000, "main")
	assert.Contains(t, out, "Recorded 4 benches")
	assert.Contains(t, out, "main -> aaaaaaaa")
	appendRun(t, tmpDir, "bbbbbbbbbb", "aaaaaaaaaa", 2000, "main")

	// 2. 账本中能查到
	rec, err := BV.Store.Get("Go Benchmark", "bbbbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, ingest.ToolGo, rec.Tool)
	assert.Equal(t, types.CommitID("aaaaaaaaaa"), rec.Commit.Parent)
	b, ok := rec.Bench("BenchmarkEncode")
	require.True(t, ok)
	assert.Equal(t, 1000.0, b.Value)
	assert.Equal(t, "ns/op", b.Unit)

	latest, err := BV.Store.GetLatest("Go Benchmark", "main")
	require.NoError(t, err)
	assert.Equal(t, types.CommitID("bbbbbbbbbb"), latest.Commit.ID)

	// 3. 落盘的 data.js 里也有
	raw, err := os.ReadFile(filepath.Join(tmpDir, ".bv", "data.js"))
	require.NoError(t, err)
	doc, err := benchdata.Unmarshal(raw)
	require.NoError(t, err)
	assert.Len(t, doc.Entries["Go Benchmark"], 2)
	assert.Equal(t, types.CommitID("bbbbbbbbbb"), doc.Branches["main"])

	// 4. 同一个 commit 再次写入被拒绝
	resetFlags()
	appendSuite = "Go Benchmark"
	appendCommitFile = filepath.Join(tmpDir, "aaaaaaaaaa.json")
	appendDate = 3000
	_, err = tryRun(appendCmd, filepath.Join(tmpDir, "bench.txt"))
	assert.ErrorIs(t, err, core.ErrDuplicateCommit)
}

func TestIntegration_AppendValidation(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	t.Run("MissingSuite", func(t *testing.T) {
		resetFlags()
		appendCommitFile = writeCommitFile(t, tmpDir, "ccc", "")
		_, err := tryRun(appendCmd, "-")
		assert.ErrorContains(t, err, "suite name cannot be empty")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		resetFlags()
		appendSuite = "Go Benchmark"
		appendTool = "jmh"
		appendCommitFile = writeCommitFile(t, tmpDir, "ccc", "")
		_, err := tryRun(appendCmd, "-")
		assert.ErrorIs(t, err, ingest.ErrUnknownTool)
	})

	t.Run("EmptyOutput", func(t *testing.T) {
		resetFlags()
		appendSuite = "Go Benchmark"
		appendCommitFile = writeCommitFile(t, tmpDir, "ccc", "")
		appendCmd.SetIn(strings.NewReader("PASS\n"))
		defer appendCmd.SetIn(nil)
		_, err := tryRun(appendCmd, "-")
		assert.ErrorIs(t, err, core.ErrMalformedRecord)
	})

	t.Run("BranchToUnknownCommit", func(t *testing.T) {
		resetFlags()
		_, err := tryRun(branchCmd, "main", "nope")
		assert.ErrorIs(t, err, core.ErrDanglingReference)
	})

	// 都没有写入任何东西
	assert.Empty(t, BV.Store.Suites())
	assert.Empty(t, BV.Store.Branches())
}

func TestIntegration_LogAndBranch(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	appendRun(t, tmpDir, "c1c1c1c1c1", "", 1000, "main")
	appendRun(t, tmpDir, "c2c2c2c2c2", "c1c1c1c1c1", 2000, "main")
	appendRun(t, tmpDir, "f1f1f1f1f1", "c1c1c1c1c1", 3000, "feature")

	// 1. 全部历史，倒序
	resetFlags()
	out := run(t, logCmd, "Go Benchmark")
	i2, i1, if1 := strings.Index(out, "c2c2c2c2c2"), strings.Index(out, "c1c1c1c1c1"), strings.Index(out, "f1f1f1f1f1")
	require.True(t, i2 >= 0 && i1 >= 0 && if1 >= 0, out)
	assert.Less(t, if1, i2)
	assert.Less(t, i2, i1)

	// 2. 只看 main 的祖先链
	logBranch = "main"
	out = run(t, logCmd, "Go Benchmark")
	assert.Contains(t, out, "c2c2c2c2c2")
	assert.NotContains(t, out, "f1f1f1f1f1")

	// 3. -n 1
	logBranch, logLimit = "", 1
	out = run(t, logCmd, "Go Benchmark")
	assert.Equal(t, 1, strings.Count(out, "run "))

	// 4. 未知 suite
	resetFlags()
	out = run(t, logCmd, "Rust Benchmark")
	assert.Contains(t, out, "No runs yet")

	// 5. 分支列表与移动
	out = run(t, branchCmd)
	assert.Contains(t, out, "feature")
	assert.Contains(t, out, "main")

	run(t, branchCmd, "main", "f1f1f1f1f1")
	assert.Equal(t, types.CommitID("f1f1f1f1f1"), BV.Store.Branches()["main"])

	out = run(t, latestCmd, "Go Benchmark", "main")
	assert.Contains(t, out, "f1f1f1f1f1")
	assert.Contains(t, out, "BenchmarkEncode")
}

func TestIntegration_CompareAndSeries(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	appendRun(t, tmpDir, "c1c1c1c1c1", "", 1000, "")
	appendRun(t, tmpDir, "c2c2c2c2c2", "c1c1c1c1c1", 2000, "")

	// 同一份输出，变化为 0
	resetFlags()
	out := run(t, compareCmd, "Go Benchmark", "c1c1c1c1c1", "c2c2c2c2c2")
	assert.Contains(t, out, "BenchmarkEncode: +0.00% ns/op")

	_, err := tryRun(compareCmd, "Go Benchmark", "c1c1c1c1c1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// 没有 SQL 后端时从快照计算
	out = run(t, seriesCmd, "Go Benchmark", "BenchmarkDecode")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "c1c1c1c1")
	assert.Contains(t, lines[1], "500 ns/op")

	out = run(t, seriesCmd, "Go Benchmark", "BenchmarkMissing")
	assert.Contains(t, out, "No values")
}

func TestIntegration_ImportExport(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)
	appendRun(t, tmpDir, "c1c1c1c1c1", "", 1000, "main")

	// 1. 构造一个外部 data.js：一条重复、一条新的
	src := core.NewDocument("https://github.com/example/project")
	existing, err := BV.Store.Get("Go Benchmark", "c1c1c1c1c1")
	require.NoError(t, err)
	fresh := existing.Clone()
	fresh.Commit.ID = "d1d1d1d1d1"
	fresh.Date = 5000
	src.Entries["Go Benchmark"] = map[types.CommitID]core.RunRecord{
		"c1c1c1c1c1": existing,
		"d1d1d1d1d1": fresh,
	}
	src.Branches["release"] = "d1d1d1d1d1"

	raw, err := benchdata.Marshal(src, benchdata.EncodeOptions{})
	require.NoError(t, err)
	path := filepath.Join(tmpDir, "upstream.js")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	// 2. 导入
	resetFlags()
	importVerbose = true
	out := run(t, importCmd, path)
	assert.Contains(t, out, "Imported 1 runs, 1 branch pointers")
	assert.Contains(t, out, "Skipped 1 runs")
	assert.Contains(t, out, "c1c1c1c1")

	// 3. 导出到 stdout
	resetFlags()
	out = run(t, exportCmd)
	require.True(t, strings.HasPrefix(out, "window.BENCHMARK_DATA = "), out)
	doc, err := benchdata.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Len(t, doc.Entries["Go Benchmark"], 2)
	assert.Equal(t, types.CommitID("d1d1d1d1d1"), doc.Branches["release"])

	// 4. 导出到文件
	exportOut = filepath.Join(tmpDir, "export.js")
	run(t, exportCmd)
	assert.FileExists(t, exportOut)
}

func TestIntegration_Stats(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)
	appendRun(t, tmpDir, "c1c1c1c1c1", "", 1000, "main")

	resetFlags()
	statsMetrics = true
	out := run(t, statsCmd)
	assert.Contains(t, out, "Runs:        1")
	assert.Contains(t, out, "Go Benchmark")
	assert.Contains(t, out, `benchvault_runs{suite="Go Benchmark"} 1`)
	assert.Contains(t, out, `benchvault_appends_total{result="ok",suite="Go Benchmark"} 1`)
}

func TestExecute_ReleasesResourcesWhenCommandFails(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	viper.Set("log.file", filepath.Join(tmpDir, "bv.log"))

	rootCmd.SetArgs([]string{"branch", "main", "nope"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)

	// 子命令失败：PersistentPostRunE 不会执行，但 App 和日志文件仍被关闭
	err := Execute()
	require.ErrorIs(t, err, core.ErrDanglingReference)
	assert.Nil(t, BV)
	assert.Nil(t, logCloser)

	// 成功的命令也只关闭一次
	rootCmd.SetArgs([]string{"branch"})
	require.NoError(t, Execute())
	assert.Nil(t, BV)
}
