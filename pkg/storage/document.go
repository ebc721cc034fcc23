package storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	"benchvault/pkg/benchdata"
	"benchvault/pkg/core"
	"benchvault/pkg/types"
)

// DefaultKey 是账本文件的默认 key
const DefaultKey = "data.js"

// Persister 是账本级别的持久化接口，与 history.Persister 签名一致
// base 是写者上一次从该后端加载或写入的账本 (nil 表示后端原本为空)，
// 存储中的内容与 base 不一致时返回 ErrConflict
type Persister interface {
	Load(ctx context.Context) (*core.Document, error)
	Save(ctx context.Context, base, next *core.Document) error
}

// Overwriter 无条件覆盖写入，镜像只需要这个能力
type Overwriter interface {
	Overwrite(ctx context.Context, doc *core.Document) error
}

// DocumentStore 把账本编码为 window.BENCHMARK_DATA 脚本存到 Blob 中
type DocumentStore struct {
	blob      Blob
	key       string
	enc       benchdata.EncodeOptions
	snapshots bool
}

type DocumentOption func(*DocumentStore)

// WithKey 指定账本文件的 key
func WithKey(key string) DocumentOption {
	return func(s *DocumentStore) { s.key = key }
}

// WithEncodeOptions 指定变量名和缩进
func WithEncodeOptions(opts benchdata.EncodeOptions) DocumentOption {
	return func(s *DocumentStore) { s.enc = opts }
}

// WithSnapshots 每次保存时额外按指纹归档一份不可变副本
// 路径: snapshots/<前 2 位>/<剩余部分>.js
func WithSnapshots(on bool) DocumentOption {
	return func(s *DocumentStore) { s.snapshots = on }
}

func NewDocumentStore(blob Blob, opts ...DocumentOption) *DocumentStore {
	s := &DocumentStore{blob: blob, key: DefaultKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key 返回账本文件的 key
func (s *DocumentStore) Key() string { return s.key }

// Load 读取并解析账本；文件不存在时返回包装了 core.ErrNotFound 的错误
func (s *DocumentStore) Load(ctx context.Context) (*core.Document, error) {
	raw, err := ReadAll(ctx, s.blob, s.key)
	if err != nil {
		return nil, err
	}
	doc, err := benchdata.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.key, err)
	}
	return doc, nil
}

// Save 检查存储中的账本仍是 base 之后再写入 next
//
// Blob 实现了 Locker 时，检查和写入在同一把锁内完成 (本地磁盘的多个进程)；
// 否则只能发现在本次读取之前发生的并发写入
func (s *DocumentStore) Save(ctx context.Context, base, next *core.Document) error {
	// 1. 加锁
	if locker, ok := s.blob.(Locker); ok {
		unlock, err := locker.Lock(ctx, s.key+".lock")
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", s.key, err)
		}
		defer unlock()
	}

	// 2. 重新读取并与 base 比较
	stored, err := s.Load(ctx)
	if errors.Is(err, core.ErrNotFound) {
		stored, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("failed to re-read %s: %w", s.key, err)
	}
	same, err := sameContent(stored, base)
	if err != nil {
		return err
	}
	if !same {
		return fmt.Errorf("%w: %s", ErrConflict, s.key)
	}

	// 3. 写入
	return s.Overwrite(ctx, next)
}

// sameContent 按内容指纹比较两份账本，两者都为 nil 时视为相同
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

// Overwrite 编码并覆盖写入账本，不做并发检查
func (s *DocumentStore) Overwrite(ctx context.Context, doc *core.Document) error {
	raw, err := benchdata.Marshal(doc, s.enc)
	if err != nil {
		return err
	}

	// 1. 归档 (内容寻址，已存在则跳过)
	if s.snapshots {
		digest, err := doc.Digest()
		if err != nil {
			return err
		}
		key := SnapshotKey(digest)
		exists, err := s.blob.Has(ctx, key)
		if err != nil {
			return fmt.Errorf("snapshot existence check failed: %w", err)
		}
		if !exists {
			if err := s.blob.Put(ctx, key, raw); err != nil {
				return fmt.Errorf("failed to archive snapshot: %w", err)
			}
		}
	}

	// 2. 主文件
	return s.blob.Put(ctx, s.key, raw)
}

// SnapshotKey 返回某个指纹对应的归档路径
// Example: "aabbcc..." -> "snapshots/aa/bbcc....js"
func SnapshotKey(d types.Digest) string {
	h := d.String()
	if len(h) < 2 {
		return path.Join("snapshots", h+".js")
	}
	return path.Join("snapshots", h[:2], h[2:]+".js")
}

// LoadSnapshot 按指纹读取归档
func (s *DocumentStore) LoadSnapshot(ctx context.Context, d types.Digest) (*core.Document, error) {
	raw, err := ReadAll(ctx, s.blob, SnapshotKey(d))
	if err != nil {
		return nil, err
	}
	return benchdata.Unmarshal(raw)
}
