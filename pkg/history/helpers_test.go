package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"benchvault/pkg/core"
	"benchvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// SpyPersister: 内存持久化，记录 Save 次数，可以注入失败
// 与真实后端一样，base 与当前内容不一致时拒绝写入
// -----------------------------------------------------------------------------
type SpyPersister struct {
	mu      sync.Mutex
	doc     *core.Document
	saves   int
	failErr error
}

var errStaleBase = errors.New("stale base document")

func (p *SpyPersister) Load(ctx context.Context) (*core.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, fmt.Errorf("document %w", core.ErrNotFound)
	}
	return p.doc.Clone(), nil
}

func (p *SpyPersister) Save(ctx context.Context, base, next *core.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	same, err := sameContent(p.doc, base)
	if err != nil {
		return err
	}
	if !same {
		return errStaleBase
	}
	p.saves++
	p.doc = next.Clone()
	return nil
}

func sameContent(a, b *core.Document) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	da, err := a.ContentDigest()
	if err != nil {
		return false, err
	}
	db, err := b.ContentDigest()
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func (p *SpyPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

var errDiskFull = errors.New("disk full")

// quietLogger 测试时丢弃日志
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore 构建一个带 SpyPersister 的空账本
func newTestStore(t *testing.T, opts ...Option) (*Store, *SpyPersister) {
	t.Helper()
	spy := &SpyPersister{}
	s, err := Open(context.Background(), spy, "https://github.com/example/project",
		append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s, spy
}

func newRecord(id types.CommitID, parent types.CommitID, date int64, benches ...core.Bench) core.RunRecord {
	return core.RunRecord{
		Commit: core.CommitInfo{
			Author:    core.Person{Name: "Alice"},
			Committer: core.Person{Name: "Alice"},
			ID:        id,
			Message:   "commit " + string(id),
			Timestamp: "2022-06-14T17:01:04+02:00",
			URL:       "https://github.com/example/project/commit/" + string(id),
			Parent:    parent,
		},
		Date:    date,
		Tool:    "cargo",
		Benches: benches,
	}
}

func bench(name string, value float64) core.Bench {
	return core.Bench{Name: name, Value: value, Unit: "ns", Range: core.NumericRange(1)}
}

// mustAppend 追加记录，失败则终止
func mustAppend(t *testing.T, s *Store, suite types.SuiteName, rec core.RunRecord, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, s.Append(context.Background(), suite, rec.Commit.ID, rec), msgAndArgs...)
}

func mustSetBranch(t *testing.T, s *Store, branch types.BranchName, id types.CommitID) {
	t.Helper()
	require.NoError(t, s.SetBranchPointer(context.Background(), branch, id))
}

// commitsOf 把序列收集成 commit id 列表
func commitsOf(seq func(func(core.RunRecord) bool)) []types.CommitID {
	var ids []types.CommitID
	for rec := range seq {
		ids = append(ids, rec.Commit.ID)
	}
	return ids
}

func mustHistory(t *testing.T, s *Store, suite types.SuiteName, opts ...HistoryOption) []types.CommitID {
	t.Helper()
	seq, err := s.GetHistory(suite, opts...)
	require.NoError(t, err)
	return commitsOf(seq)
}

func mustDigest(t *testing.T, s *Store) types.Digest {
	t.Helper()
	d, err := s.Snapshot().Digest()
	require.NoError(t, err)
	return d
}

func isSortedByDate(recs []core.RunRecord) bool {
	return slices.IsSortedFunc(recs, func(a, b core.RunRecord) int {
		if a.Date < b.Date {
			return -1
		}
		if a.Date > b.Date {
			return 1
		}
		return 0
	})
}
