package core

import (
	"fmt"
	"maps"
	"slices"

	"benchvault/pkg/types"
)

// Document 是整个历史账本：
// Suite -> CommitID -> RunRecord，加上分支指针表和最后更新时间
type Document struct {
	LastUpdate int64                                            `json:"lastUpdate" cbor:"lastUpdate"` // epoch ms
	RepoURL    string                                           `json:"repoUrl" cbor:"repoUrl"`
	Entries    map[types.SuiteName]map[types.CommitID]RunRecord `json:"entries" cbor:"entries"`
	Branches   map[types.BranchName]types.CommitID              `json:"branches" cbor:"branches"`
}

// NewDocument 创建一个空账本
func NewDocument(repoURL string) *Document {
	return &Document{
		RepoURL:  repoURL,
		Entries:  make(map[types.SuiteName]map[types.CommitID]RunRecord),
		Branches: make(map[types.BranchName]types.CommitID),
	}
}

// HasCommit 检查是否有任意 Suite 包含这个 commit
func (d *Document) HasCommit(id types.CommitID) bool {
	for _, runs := range d.Entries {
		if _, ok := runs[id]; ok {
			return true
		}
	}
	return false
}

// Suites 返回排好序的 Suite 名
func (d *Document) Suites() []types.SuiteName {
	return slices.Sorted(maps.Keys(d.Entries))
}

// RunCount 统计所有 Suite 的记录总数
func (d *Document) RunCount() int {
	n := 0
	for _, runs := range d.Entries {
		n += len(runs)
	}
	return n
}

// Validate 检查账本级别的不变量
func (d *Document) Validate() error {
	for _, suite := range d.Suites() {
		if suite.IsZero() {
			return fmt.Errorf("%w: empty suite name", ErrMalformedRecord)
		}
		runs := d.Entries[suite]
		for _, id := range slices.Sorted(maps.Keys(runs)) {
			rec := runs[id]
			// 1. Key 必须与记录自身的 commit id 一致
			if rec.Commit.ID != id {
				return fmt.Errorf("%w: suite %q: key %s does not match commit.id %s",
					ErrMalformedRecord, suite, id, rec.Commit.ID)
			}
			// 2. 记录自身合法
			if err := rec.Validate(); err != nil {
				return fmt.Errorf("suite %q: %w", suite, err)
			}
			// 3. lastUpdate 单调：不早于任何一条记录
			if rec.Date > d.LastUpdate {
				return fmt.Errorf("%w: suite %q: commit %s dated %d after lastUpdate %d",
					ErrMalformedRecord, suite, id, rec.Date, d.LastUpdate)
			}
		}
	}

	// 4. 分支指针必须能解析
	for branch, id := range d.Branches {
		if !d.HasCommit(id) {
			return fmt.Errorf("%w: branch %q -> %s", ErrDanglingReference, branch, id)
		}
	}
	return nil
}

// Clone 深拷贝，修改副本不会影响原账本
func (d *Document) Clone() *Document {
	out := &Document{
		LastUpdate: d.LastUpdate,
		RepoURL:    d.RepoURL,
		Entries:    make(map[types.SuiteName]map[types.CommitID]RunRecord, len(d.Entries)),
		Branches:   maps.Clone(d.Branches),
	}
	if out.Branches == nil {
		out.Branches = make(map[types.BranchName]types.CommitID)
	}
	for suite, runs := range d.Entries {
		cp := make(map[types.CommitID]RunRecord, len(runs))
		for id, rec := range runs {
			cp[id] = rec.Clone()
		}
		out.Entries[suite] = cp
	}
	return out
}

// Digest 返回整个账本的规范化指纹，用于判断两个账本是否完全相同
func (d *Document) Digest() (types.Digest, error) {
	dg, _, err := CalculateDigest(d)
	return dg, err
}

// ContentDigest 与 Digest 相同，但忽略没有任何记录的 Suite
// 持久化后端比较 "存储中的状态" 与 "写者基于的状态" 时使用：
// 空 Suite 在某些后端 (比如 SQL 表) 里无法表示
func (d *Document) ContentDigest() (types.Digest, error) {
	return d.withoutEmptySuites().Digest()
}

func (d *Document) withoutEmptySuites() *Document {
	out := &Document{
		LastUpdate: d.LastUpdate,
		RepoURL:    d.RepoURL,
		Entries:    make(map[types.SuiteName]map[types.CommitID]RunRecord, len(d.Entries)),
		Branches:   d.Branches,
	}
	for suite, runs := range d.Entries {
		if len(runs) > 0 {
			out.Entries[suite] = runs
		}
	}
	return out
}
