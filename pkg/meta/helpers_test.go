package meta

import (
	"context"
	"fmt"
	"testing"

	"benchvault/pkg/core"
	"benchvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// setupTestRepo 构建隔离的测试环境 (每个测试一个内存库)
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(Models()...))
	t.Cleanup(func() { metaDB.Close() })

	return NewRepository(metaDB)
}

func newRecord(id, parent types.CommitID, date int64, benches ...core.Bench) core.RunRecord {
	distinct := true
	return core.RunRecord{
		Commit: core.CommitInfo{
			Author:    core.Person{Name: "Alice", Username: "alice", Email: "alice@example.com"},
			Committer: core.Person{Name: "GitHub", Username: "web-flow"},
			ID:        id,
			Message:   "commit " + string(id),
			Timestamp: "2022-06-14T17:01:04+02:00",
			URL:       "https://github.com/example/project/commit/" + string(id),
			Distinct:  &distinct,
			Parent:    parent,
		},
		Date:    date,
		Tool:    "cargo",
		Benches: benches,
	}
}

// mustSave 保存账本，失败则终止
// base 是写者加载时看到的账本，首次写入传 nil
func mustSave(t *testing.T, repo *Repository, base, doc *core.Document, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), base, doc), msgAndArgs...)
}

func mustLoad(t *testing.T, repo *Repository) *core.Document {
	t.Helper()
	doc, err := repo.Load(context.Background())
	require.NoError(t, err)
	return doc
}

func mustDigest(t *testing.T, doc *core.Document) types.Digest {
	t.Helper()
	d, err := doc.Digest()
	require.NoError(t, err)
	return d
}
