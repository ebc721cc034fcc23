package storage

import (
	"context"
	"fmt"
	"io"

	"benchvault/pkg/core"
)

var (
	// ErrNotFound 包装 core.ErrNotFound，调用方用 errors.Is(err, core.ErrNotFound) 即可判断
	ErrNotFound = fmt.Errorf("object %w", core.ErrNotFound)

	// ErrConflict 存储中的账本已经不是写者加载时的版本
	ErrConflict = fmt.Errorf("document changed by another writer: %w", core.ErrConcurrentUpdate)
)

// Blob 是按 key 存取字节的后端 (本地磁盘、对象存储)
// 与内容寻址不同，同一个 key 可以被覆盖 (data.js 每次写入都会变)
type Blob interface {
	// Put 写入 key 对应的完整内容，要么全部可见，要么不可见
	Put(ctx context.Context, key string, data []byte) error

	// Get 读取 key 对应的内容；不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Has 检查 key 是否存在
	Has(ctx context.Context, key string) (bool, error)
}

// Locker 由支持跨进程互斥的 Blob 实现 (本地磁盘用文件锁)
// DocumentStore 在 "读取-比较-写入" 期间持有锁
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func() error, err error)
}

// ReadAll 读取 key 对应的全部内容
func ReadAll(ctx context.Context, b Blob, key string) ([]byte, error) {
	rc, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
