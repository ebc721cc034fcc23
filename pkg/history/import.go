package history

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"benchvault/pkg/core"
	"benchvault/pkg/telemetry"
	"benchvault/pkg/types"
)

// ImportReport 汇总一次导入的结果
type ImportReport struct {
	Added      int
	Duplicates []Duplicate
	Branches   int
}

// Duplicate 是导入时已存在而被跳过的记录
type Duplicate struct {
	Suite  types.SuiteName
	Commit types.CommitID
}

// Import 把另一个账本的记录合并进来 (例如迁移上游 action 生成的 data.js)
//
// 与 Append 的区别：已存在的 (suite, commit) 不报错而是跳过并记录在报告里；
// 所有新记录与分支指针在一次持久化中生效，任何一条不合法则整体放弃。
func (s *Store) Import(ctx context.Context, src *core.Document) (ImportReport, error) {
	var report ImportReport

	// 1. 先校验来源中的每条记录
	for _, suite := range src.Suites() {
		if suite.IsZero() {
			return report, fmt.Errorf("%w: suite name is required", core.ErrMalformedRecord)
		}
		for id, rec := range src.Entries[suite] {
			if rec.Commit.ID != id {
				return report, fmt.Errorf("%w: suite %q: key %s does not match commit.id %s",
					core.ErrMalformedRecord, suite, id, rec.Commit.ID)
			}
			if err := rec.Validate(); err != nil {
				return report, fmt.Errorf("suite %q: %w", suite, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot()
	next := shallowCopy(cur)

	// 2. 合并记录，按 Suite / commit 排序保证报告稳定
	added := make(map[types.SuiteName]int)
	for _, suite := range src.Suites() {
		incoming := src.Entries[suite]
		runs := make(map[types.CommitID]core.RunRecord, len(cur.Entries[suite])+len(incoming))
		maps.Copy(runs, cur.Entries[suite])

		for _, id := range slices.Sorted(maps.Keys(incoming)) {
			if _, dup := runs[id]; dup {
				report.Duplicates = append(report.Duplicates, Duplicate{Suite: suite, Commit: id})
				s.metrics.ObserveAppend(suite.String(), telemetry.ResultDuplicate)
				continue
			}
			rec := incoming[id].Clone()
			if rec.Benches == nil {
				rec.Benches = []core.Bench{}
			}
			runs[id] = rec
			next.LastUpdate = max(next.LastUpdate, rec.Date)
			report.Added++
			added[suite]++
		}
		next.Entries[suite] = runs
	}
	// 来源自身的 lastUpdate 也计入 (它记录的是来源最近一次入库时间)
	next.LastUpdate = max(next.LastUpdate, src.LastUpdate)

	// 3. 合并分支指针 (来源覆盖本地)
	if len(src.Branches) > 0 {
		next.Branches = maps.Clone(cur.Branches)
		if next.Branches == nil {
			next.Branches = make(map[types.BranchName]types.CommitID, len(src.Branches))
		}
		for branch, id := range src.Branches {
			if branch.IsZero() {
				return ImportReport{}, fmt.Errorf("%w: branch name is required", core.ErrMalformedRecord)
			}
			if !next.HasCommit(id) {
				return ImportReport{}, fmt.Errorf("%w: branch %q -> %s", core.ErrDanglingReference, branch, id)
			}
			if next.Branches[branch] != id {
				next.Branches[branch] = id
				report.Branches++
			}
		}
	}

	if report.Added == 0 && report.Branches == 0 && next.LastUpdate == cur.LastUpdate {
		return report, nil
	}

	// 4. 一次持久化
	if err := s.persist(ctx, next); err != nil {
		return ImportReport{}, err
	}
	s.snap.Store(next)

	for _, suite := range src.Suites() {
		s.metrics.ObserveAppends(suite.String(), telemetry.ResultOK, added[suite])
		s.metrics.SetRuns(suite.String(), len(next.Entries[suite]))
	}
	s.logger.Info("imported document",
		slog.Int("added", report.Added),
		slog.Int("duplicates", len(report.Duplicates)),
		slog.Int("branches", report.Branches))
	return report, nil
}
