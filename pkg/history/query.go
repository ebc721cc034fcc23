package history

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"benchvault/pkg/core"
	"benchvault/pkg/types"
)

type historyConfig struct {
	branch types.BranchName
	limit  int
}

// HistoryOption 调整 GetHistory 的结果
type HistoryOption func(*historyConfig)

// WithBranch 只保留从分支指针出发、沿 Parent 回溯能到达的记录
func WithBranch(b types.BranchName) HistoryOption {
	return func(c *historyConfig) { c.branch = b }
}

// WithLimit 只保留按 date 最新的 n 条；n <= 0 表示不限制
func WithLimit(n int) HistoryOption {
	return func(c *historyConfig) { c.limit = n }
}

// GetHistory 返回某个 Suite 的记录序列，按 date 升序 (date 相同按 commit id)
//
// 序列是惰性的：只在被 range 时才做回溯与排序。
// 序列基于调用时的快照，可以反复 range，每次结果相同，不受之后写入的影响。
func (s *Store) GetHistory(suite types.SuiteName, opts ...HistoryOption) (iter.Seq[core.RunRecord], error) {
	var cfg historyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// 1. 参数检查在调用时完成，错误同步返回
	snap := s.snapshot()
	if _, ok := snap.Entries[suite]; !ok {
		return nil, fmt.Errorf("%w: suite %q", core.ErrNotFound, suite)
	}
	var head types.CommitID
	if !cfg.branch.IsZero() {
		id, ok := snap.Branches[cfg.branch]
		if !ok {
			return nil, fmt.Errorf("%w: branch %q has no pointer", core.ErrNotFound, cfg.branch)
		}
		head = id
	}

	// 2. 真正的计算推迟到迭代时
	return func(yield func(core.RunRecord) bool) {
		var records []core.RunRecord
		if head.IsZero() {
			records = allRecords(snap, suite)
		} else {
			records = ancestry(snap, suite, head)
		}

		slices.SortFunc(records, byDate)
		if cfg.limit > 0 && len(records) > cfg.limit {
			records = records[len(records)-cfg.limit:]
		}

		for _, rec := range records {
			if !yield(rec.Clone()) {
				return
			}
		}
	}, nil
}

func byDate(a, b core.RunRecord) int {
	return cmp.Or(
		cmp.Compare(a.Date, b.Date),
		cmp.Compare(a.Commit.ID, b.Commit.ID),
	)
}

func allRecords(snap *core.Document, suite types.SuiteName) []core.RunRecord {
	runs := snap.Entries[suite]
	out := make([]core.RunRecord, 0, len(runs))
	for _, rec := range runs {
		out = append(out, rec)
	}
	return out
}

// ancestry 从 head 出发沿 Parent 做线性回溯
//
// Parent 信息优先取自本 Suite 的记录；本 Suite 缺失某个 commit 时
// (比如那次构建这个 Suite 没跑) 借用其它 Suite 中同一 commit 的记录继续回溯，
// 但只有本 Suite 的记录会出现在结果里。
// 遇到以下情况停止：Parent 为空、整个账本都找不到该 commit、出现环。
// 步数上限为账本记录总数，保证在任何数据下都能终止。
func ancestry(snap *core.Document, suite types.SuiteName, head types.CommitID) []core.RunRecord {
	runs := snap.Entries[suite]
	others := snap.Suites()

	var out []core.RunRecord
	visited := make(map[types.CommitID]struct{})
	budget := snap.RunCount()

	for id := head; !id.IsZero() && budget > 0; budget-- {
		if _, seen := visited[id]; seen {
			break // 环
		}
		visited[id] = struct{}{}

		if rec, ok := runs[id]; ok {
			out = append(out, rec)
			id = rec.Commit.Parent
			continue
		}

		// 本 Suite 没有，找其它 Suite 借 Parent
		parent, found := lookupParent(snap, others, id)
		if !found {
			break
		}
		id = parent
	}
	return out
}

func lookupParent(snap *core.Document, suites []types.SuiteName, id types.CommitID) (types.CommitID, bool) {
	for _, suite := range suites {
		if rec, ok := snap.Entries[suite][id]; ok {
			return rec.Commit.Parent, true
		}
	}
	return "", false
}
