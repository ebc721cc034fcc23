package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"benchvault/pkg/benchdata"
	"benchvault/pkg/history"
	"benchvault/pkg/meta"
	"benchvault/pkg/storage"
	"benchvault/pkg/storage/cache"
	"benchvault/pkg/storage/disk"
	"benchvault/pkg/storage/s3"
	"benchvault/pkg/telemetry"

	"github.com/spf13/viper"
)

// 支持的存储类型 (storage.type)
const (
	StorageDisk = "disk"
	StorageS3   = "s3"
	StorageSQL  = "sql"
)

// App 是整个应用程序的依赖容器
// 它按 Viper 配置组装账本和持久化协作者，但不知道具体的 CLI 命令
type App struct {
	Store   *history.Store
	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Documents 是基于 Blob 的持久化 (disk / s3)；storage.type = sql 时为 nil
	Documents *storage.DocumentStore
	// Repo 是 SQL 持久化；只有 storage.type = sql 时非 nil
	Repo *meta.Repository

	closers []io.Closer
}

// NewApp 组装依赖并加载账本
func NewApp(ctx context.Context, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Logger:  logger,
		Metrics: telemetry.NewMetrics(nil),
	}

	// 1. 持久化协作者
	persister, err := a.initPersister(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 2. 账本
	store, err := history.Open(ctx, persister, viper.GetString("repo.url"),
		history.WithLogger(logger),
		history.WithMetrics(a.Metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	a.Store = store
	return a, nil
}

// Close 释放数据库、Redis 等连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EncodeOptions 返回配置里的输出格式
func EncodeOptions() benchdata.EncodeOptions {
	return benchdata.EncodeOptions{
		Identifier: viper.GetString("document.identifier"),
		Indent:     viper.GetString("document.indent"),
	}
}

func (a *App) initPersister(ctx context.Context) (history.Persister, error) {
	var primary history.Persister

	switch kind := viper.GetString("storage.type"); kind {
	case StorageSQL:
		db, err := initDB(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		a.Repo = meta.NewRepository(db)
		primary = a.Repo

	default:
		blob, key, err := initStore(ctx, kind)
		if err != nil {
			return nil, err
		}
		blob, err = a.withCache(blob)
		if err != nil {
			return nil, err
		}
		a.Documents = storage.NewDocumentStore(blob,
			storage.WithKey(key),
			storage.WithEncodeOptions(EncodeOptions()),
			storage.WithSnapshots(viper.GetBool("document.snapshots")),
		)
		primary = a.Documents
	}

	// 镜像：额外写到本地文件 (比如 gh-pages 的工作目录)
	mirrorPaths := viper.GetStringSlice("storage.mirrors")
	if len(mirrorPaths) == 0 {
		return primary, nil
	}
	mirrors := make([]storage.Overwriter, 0, len(mirrorPaths))
	for _, p := range mirrorPaths {
		blob, err := disk.NewAdapter(filepath.Dir(p))
		if err != nil {
			return nil, fmt.Errorf("failed to init mirror %s: %w", p, err)
		}
		mirrors = append(mirrors, storage.NewDocumentStore(blob,
			storage.WithKey(filepath.Base(p)),
			storage.WithEncodeOptions(EncodeOptions()),
		))
	}
	return storage.NewMirror(primary, mirrors, a.Logger)
}

// initStore 按 storage.type 创建 Blob，返回账本文件的 key
func initStore(ctx context.Context, kind string) (storage.Blob, string, error) {
	switch kind {
	case StorageDisk, "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, "", fmt.Errorf("storage path not set")
		}
		blob, err := disk.NewAdapter(filepath.Dir(path))
		if err != nil {
			return nil, "", fmt.Errorf("failed to init storage: %w", err)
		}
		return blob, filepath.Base(path), nil

	case StorageS3:
		blob, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to init s3 storage: %w", err)
		}
		return blob, viper.GetString("s3.key"), nil

	default:
		return nil, "", fmt.Errorf("unsupported storage type %q", kind)
	}
}

// withCache 配置了 cache.redis_url 时给 Blob 套上 Redis 缓存
func (a *App) withCache(blob storage.Blob) (storage.Blob, error) {
	url := viper.GetString("cache.redis_url")
	if url == "" {
		return blob, nil
	}
	cached, err := cache.NewCachedStore(blob, cache.Config{
		RedisURL: url,
		TTL:      viper.GetDuration("cache.ttl"),
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cached)
	return cached, nil
}

func initDB(ctx context.Context) (*meta.DB, error) {
	return meta.NewDB(ctx, meta.Config{
		Driver:   viper.GetString("database.driver"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.name"),
		SSLMode:  viper.GetString("database.sslmode"),
		Path:     viper.GetString("database.path"),
		LogSQL:   viper.GetString("log.level") == "debug",
	})
}
