package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"benchvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，为底层的 storage.Blob 添加 Redis 读缓存
//
// data.js 会被频繁读取 (每个 CLI 命令都要 Load)，但只在写入时改变，
// 所以采用 write-through：Put 成功后立即刷新缓存。
type CachedStore struct {
	backend storage.Blob  // 被装饰的底层存储 (如 S3)
	client  *redis.Client // Redis 客户端
	ttl     time.Duration // 缓存过期时间 (0 表示不过期)
	logger  *slog.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Blob, cfg Config, logger *slog.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		logger:  logger,
	}, nil
}

// Close 关闭 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(key string) string {
	return "bv:blob:" + key
}

// Get 优先读 Redis，未命中时读底层存储并回填
func (s *CachedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ck := s.cacheKey(key)

	// 1. 查 Redis
	data, err := s.client.Get(ctx, ck).Bytes()
	switch {
	case err == nil:
		return io.NopCloser(bytes.NewReader(data)), nil
	case errors.Is(err, redis.Nil):
		// 未命中
	default:
		// 缓存故障降级：Redis 不可用时直接读底层存储
		s.logger.Warn("redis get failed, falling back to backend",
			slog.String("key", key), slog.String("err", err.Error()))
	}

	// 2. 读底层存储
	data, err = storage.ReadAll(ctx, s.backend, key)
	if err != nil {
		return nil, err
	}

	// 3. 回填 (失败不影响读取结果)
	if err := s.client.Set(ctx, ck, data, s.ttl).Err(); err != nil {
		s.logger.Warn("redis fill failed", slog.String("key", key), slog.String("err", err.Error()))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put 先写底层存储，成功后刷新缓存
func (s *CachedStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}

	ck := s.cacheKey(key)
	if err := s.client.Set(ctx, ck, data, s.ttl).Err(); err != nil {
		// 写缓存失败时删掉旧值，避免读到过期内容
		s.logger.Warn("redis set failed", slog.String("key", key), slog.String("err", err.Error()))
		s.client.Del(ctx, ck)
	}
	return nil
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.cacheKey(key)).Result()
	if err != nil {
		s.logger.Warn("redis exists failed, falling back to backend",
			slog.String("key", key), slog.String("err", err.Error()))
	} else if n > 0 {
		return true, nil
	}
	return s.backend.Has(ctx, key)
}

// Lock 转发给底层存储；底层不支持跨进程锁时返回空操作
func (s *CachedStore) Lock(ctx context.Context, key string) (func() error, error) {
	if locker, ok := s.backend.(storage.Locker); ok {
		return locker.Lock(ctx, key)
	}
	return func() error { return nil }, nil
}
