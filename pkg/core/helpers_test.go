package core

import (
	"fmt"
	"testing"

	"benchvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// newRecord 构造一条最小的合法记录
func newRecord(id types.CommitID, date int64, benches ...Bench) RunRecord {
	return RunRecord{
		Commit: CommitInfo{
			Author:    Person{Name: "Alice", Username: "alice"},
			Committer: Person{Name: "Alice", Username: "alice"},
			ID:        id,
			Message:   fmt.Sprintf("commit %s", id),
			Timestamp: "2022-06-14T17:01:04+02:00",
			URL:       "https://github.com/example/project/commit/" + string(id),
		},
		Date:    date,
		Tool:    "cargo",
		Benches: benches,
	}
}

func bench(name string, value float64) Bench {
	return Bench{Name: name, Value: value, Unit: "ns/iter", Range: TextRange("± 10")}
}

// mustDigest 计算指纹，失败直接终止测试
func mustDigest(t *testing.T, d *Document, msgAndArgs ...any) types.Digest {
	t.Helper()
	dg, err := d.Digest()
	require.NoError(t, err, msgAndArgs...)
	return dg
}
