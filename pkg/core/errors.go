package core

import "errors"

// 历史账本的错误分类
// 所有错误都同步返回给调用方 (CI)，由调用方决定是否重试
var (
	// ErrDuplicateCommit 同一个 Suite 里已经有这个 commit 的记录
	ErrDuplicateCommit = errors.New("duplicate commit")

	// ErrDanglingReference 分支指针指向了任何 Suite 都没有的 commit
	ErrDanglingReference = errors.New("dangling reference")

	// ErrNotFound Suite / commit / 分支 没有对应记录
	ErrNotFound = errors.New("not found")

	// ErrMalformedRecord 缺少必填字段，或同一条记录里 bench 名重复
	ErrMalformedRecord = errors.New("malformed record")

	// ErrConcurrentUpdate 持久化后端中的账本在加载之后被另一个写者修改过
	// 写入被拒绝，调用方重新加载后再重试
	ErrConcurrentUpdate = errors.New("concurrent update")
)
