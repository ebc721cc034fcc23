package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"benchvault/pkg/storage"

	"github.com/gofrs/flock"
)

// lockRetryDelay 是等待文件锁时的轮询间隔
const lockRetryDelay = 50 * time.Millisecond

// Adapter 实现了 storage.Blob 接口，key 是相对于根目录的路径
type Adapter struct {
	rootPath string // 比如: /home/user/project/.bv
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// Root 返回根目录
func (s *Adapter) Root() string { return s.rootPath }

// layout 返回 key 对应的物理路径
// key 使用 "/" 分隔，不允许逃出根目录
func (s *Adapter) layout(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.rootPath, clean), nil
}

func (s *Adapter) Put(ctx context.Context, key string, data []byte) error {
	targetPath, err := s.layout(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入
	// 先写到同目录下的临时文件，再 Rename 覆盖目标。
	// 读者要么看到旧文件，要么看到完整的新文件。
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	// 成功 Rename 之后这个删除是无害的
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 3. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(targetPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, key string) (bool, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(targetPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Lock 获取 key 对应的文件锁 (同一台机器上的多个进程互斥)，阻塞直到拿到锁或 ctx 结束
func (s *Adapter) Lock(ctx context.Context, key string) (func() error, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return nil, err
	}

	fileLock := flock.New(targetPath)
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire lock %s", key)
	}
	return fileLock.Unlock, nil
}
