// Package history 实现基准测试历史账本
//
// 账本是只追加 (append-only) 的：Suite -> CommitID -> RunRecord。
// 记录写入后不再修改或删除；只有分支指针可以被覆盖。
//
// 并发模型：
//   - 所有写操作由一把写锁串行化，"检查重复 -> 插入" 因此是原子的；
//   - 每次写入都在副本上构建新快照，持久化成功后再通过 atomic.Pointer 发布；
//   - 读操作只加载快照指针，不加锁，看到的要么是写入前的完整状态，要么是写入后的完整状态。
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"benchvault/pkg/core"
	"benchvault/pkg/telemetry"
	"benchvault/pkg/types"
)

// Persister 是账本的持久化协作者 (文件、对象存储或数据库)
//
// 约定：
//   - Load 在尚未持久化任何内容时返回包装了 core.ErrNotFound 的错误；
//   - Save 的 base 是这个 Store 上一次从该后端读到或写入的账本 (nil 表示后端里还没有账本)，
//     next 是要写入的账本。后端中的状态已经不等于 base 时 (另一个进程抢先写入)，
//     实现方必须拒绝写入并返回错误，而不是覆盖对方的结果；
//   - Save 收到的 Document 与内存快照共享结构，实现方不得修改它们。
type Persister interface {
	Load(ctx context.Context) (*core.Document, error)
	Save(ctx context.Context, base, next *core.Document) error
}

// Store 是账本实例，必须显式构造 (没有全局单例)
type Store struct {
	mu   sync.Mutex // 写锁
	snap atomic.Pointer[core.Document]

	persister Persister
	base      *core.Document // 后端当前持有的账本 (受 mu 保护)
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

type Option func(*Store)

// WithPersister 注入持久化协作者；不注入时账本只存在于内存
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New 用给定的账本初始化 Store
// doc 为 nil 时创建空账本；doc 会被深拷贝并校验。
// 注入了 Persister 时，第一次写入假定后端里还没有账本；从后端加载请用 Open。
func New(doc *core.Document, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if doc == nil {
		doc = core.NewDocument("")
	} else {
		doc = doc.Clone()
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}

	s.snap.Store(doc)
	for _, suite := range doc.Suites() {
		s.metrics.SetRuns(suite.String(), len(doc.Entries[suite]))
	}
	return s, nil
}

// Open 从持久化协作者加载账本
// 尚未持久化过 (core.ErrNotFound) 时从空账本开始，repoURL 作为仓库地址
func Open(ctx context.Context, p Persister, repoURL string, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("persister is required")
	}

	stored, err := p.Load(ctx)
	var doc *core.Document
	switch {
	case errors.Is(err, core.ErrNotFound):
		stored = nil
		doc = core.NewDocument(repoURL)
	case err != nil:
		return nil, fmt.Errorf("failed to load document: %w", err)
	default:
		doc = stored.Clone()
	}
	if doc.RepoURL == "" {
		doc.RepoURL = repoURL
	}

	s, err := New(doc, append(opts, WithPersister(p))...)
	if err != nil {
		return nil, err
	}
	s.base = stored
	return s, nil
}

// snapshot 返回当前只读快照，调用方不得修改
func (s *Store) snapshot() *core.Document {
	return s.snap.Load()
}

// -----------------------------------------------------------------------------
// 写操作
// -----------------------------------------------------------------------------

// Append 追加一条记录
//   - Suite 不存在时自动创建；
//   - 同一 Suite 已有该 commit 时返回 core.ErrDuplicateCommit，账本保持不变；
//   - lastUpdate 更新为 max(lastUpdate, record.Date)。
func (s *Store) Append(ctx context.Context, suite types.SuiteName, commitID types.CommitID, record core.RunRecord) error {
	// 1. 校验输入 (不需要锁)
	if suite.IsZero() {
		s.metrics.ObserveAppend(suite.String(), telemetry.ResultMalformed)
		return fmt.Errorf("%w: suite name is required", core.ErrMalformedRecord)
	}
	if record.Commit.ID != commitID {
		s.metrics.ObserveAppend(suite.String(), telemetry.ResultMalformed)
		return fmt.Errorf("%w: commit id %q does not match record commit.id %q",
			core.ErrMalformedRecord, commitID, record.Commit.ID)
	}
	if err := record.Validate(); err != nil {
		s.metrics.ObserveAppend(suite.String(), telemetry.ResultMalformed)
		return err
	}

	record = record.Clone()
	if record.Benches == nil {
		record.Benches = []core.Bench{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. 去重检查 (在写锁内，保证原子性)
	cur := s.snapshot()
	if _, dup := cur.Entries[suite][commitID]; dup {
		s.metrics.ObserveAppend(suite.String(), telemetry.ResultDuplicate)
		s.logger.Warn("rejected duplicate run record",
			slog.String("suite", suite.String()),
			slog.String("commit", commitID.String()))
		return fmt.Errorf("%w: suite %q already has commit %s", core.ErrDuplicateCommit, suite, commitID)
	}

	// 3. 在副本上构建新快照 (Copy-On-Write)
	// 只复制被修改的那一层 map，其余记录与旧快照共享
	next := shallowCopy(cur)
	runs := make(map[types.CommitID]core.RunRecord, len(cur.Entries[suite])+1)
	maps.Copy(runs, cur.Entries[suite])
	runs[commitID] = record
	next.Entries[suite] = runs
	next.LastUpdate = max(cur.LastUpdate, record.Date)

	// 4. 先持久化，再发布
	if err := s.persist(ctx, next); err != nil {
		s.metrics.ObserveAppend(suite.String(), telemetry.ResultError)
		return err
	}
	s.snap.Store(next)

	s.metrics.ObserveAppend(suite.String(), telemetry.ResultOK)
	s.metrics.SetRuns(suite.String(), len(runs))
	s.logger.Info("appended run record",
		slog.String("suite", suite.String()),
		slog.String("commit", commitID.String()),
		slog.Int64("date", record.Date),
		slog.Int("benches", len(record.Benches)))
	return nil
}

// SetBranchPointer 把分支指向某个 commit
// commit 不在任何 Suite 中时返回 core.ErrDanglingReference；重复设置同一个值是幂等的
func (s *Store) SetBranchPointer(ctx context.Context, branch types.BranchName, commitID types.CommitID) error {
	if branch.IsZero() {
		s.metrics.ObserveBranchUpdate(telemetry.ResultMalformed)
		return fmt.Errorf("%w: branch name is required", core.ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot()
	if !cur.HasCommit(commitID) {
		s.metrics.ObserveBranchUpdate(telemetry.ResultDangling)
		s.logger.Warn("rejected dangling branch pointer",
			slog.String("branch", branch.String()),
			slog.String("commit", commitID.String()))
		return fmt.Errorf("%w: branch %q -> %s: commit not in any suite", core.ErrDanglingReference, branch, commitID)
	}

	// 幂等：没有变化就不写盘
	if cur.Branches[branch] == commitID {
		s.metrics.ObserveBranchUpdate(telemetry.ResultOK)
		return nil
	}

	next := shallowCopy(cur)
	next.Branches = maps.Clone(cur.Branches)
	if next.Branches == nil {
		next.Branches = make(map[types.BranchName]types.CommitID, 1)
	}
	next.Branches[branch] = commitID

	if err := s.persist(ctx, next); err != nil {
		s.metrics.ObserveBranchUpdate(telemetry.ResultError)
		return err
	}
	s.snap.Store(next)

	s.metrics.ObserveBranchUpdate(telemetry.ResultOK)
	s.logger.Info("moved branch pointer",
		slog.String("branch", branch.String()),
		slog.String("commit", commitID.String()))
	return nil
}

// persist 把 next 写入后端，调用方必须持有 s.mu
func (s *Store) persist(ctx context.Context, next *core.Document) error {
	if s.persister == nil {
		return nil
	}
	start := time.Now()
	err := s.persister.Save(ctx, s.base, next)
	s.metrics.ObservePersist(time.Since(start))
	if err != nil {
		s.logger.Error("failed to persist document", slog.String("err", err.Error()))
		return fmt.Errorf("failed to persist document: %w", err)
	}
	s.base = next
	return nil
}

// shallowCopy 复制顶层结构；Suite 内部的 map 与记录仍然共享
func shallowCopy(d *core.Document) *core.Document {
	return &core.Document{
		LastUpdate: d.LastUpdate,
		RepoURL:    d.RepoURL,
		Entries:    maps.Clone(d.Entries),
		Branches:   d.Branches,
	}
}

// -----------------------------------------------------------------------------
// 读操作
// -----------------------------------------------------------------------------

// GetLatest 返回分支当前指向的 commit 在该 Suite 中的记录
func (s *Store) GetLatest(suite types.SuiteName, branch types.BranchName) (core.RunRecord, error) {
	snap := s.snapshot()

	head, ok := snap.Branches[branch]
	if !ok {
		return core.RunRecord{}, fmt.Errorf("%w: branch %q has no pointer", core.ErrNotFound, branch)
	}
	rec, ok := snap.Entries[suite][head]
	if !ok {
		return core.RunRecord{}, fmt.Errorf("%w: suite %q has no record for commit %s", core.ErrNotFound, suite, head)
	}
	return rec.Clone(), nil
}

// Get 按 commit 读取某个 Suite 的记录
func (s *Store) Get(suite types.SuiteName, commitID types.CommitID) (core.RunRecord, error) {
	rec, ok := s.snapshot().Entries[suite][commitID]
	if !ok {
		return core.RunRecord{}, fmt.Errorf("%w: suite %q has no record for commit %s", core.ErrNotFound, suite, commitID)
	}
	return rec.Clone(), nil
}

// Suites 返回排好序的 Suite 名
func (s *Store) Suites() []types.SuiteName {
	return s.snapshot().Suites()
}

// Branches 返回分支指针表的副本
func (s *Store) Branches() map[types.BranchName]types.CommitID {
	return maps.Clone(s.snapshot().Branches)
}

func (s *Store) LastUpdate() int64 {
	return s.snapshot().LastUpdate
}

func (s *Store) RepoURL() string {
	return s.snapshot().RepoURL
}

// Snapshot 返回整个账本的深拷贝
func (s *Store) Snapshot() *core.Document {
	return s.snapshot().Clone()
}
