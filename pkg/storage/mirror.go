package storage

import (
	"context"
	"errors"
	"log/slog"

	"benchvault/pkg/core"

	"golang.org/x/sync/errgroup"
)

// Mirror 把账本写到一个主存储和若干镜像
//
// Load 只读主存储。Save 先在主存储上做并发检查并写入，成功后并发覆盖所有镜像；
// 镜像失败只记录日志，不影响 Save 的结果 (主存储是唯一的事实来源)。
type Mirror struct {
	primary Persister
	mirrors []Overwriter
	logger  *slog.Logger
}

func NewMirror(primary Persister, mirrors []Overwriter, logger *slog.Logger) (*Mirror, error) {
	if primary == nil {
		return nil, errors.New("primary persister is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{primary: primary, mirrors: mirrors, logger: logger}, nil
}

func (m *Mirror) Load(ctx context.Context) (*core.Document, error) {
	return m.primary.Load(ctx)
}

func (m *Mirror) Save(ctx context.Context, base, next *core.Document) error {
	if err := m.primary.Save(ctx, base, next); err != nil {
		return err
	}
	if len(m.mirrors) == 0 {
		return nil
	}

	// 镜像之间互不依赖，一个失败不取消其它；每个失败各自记录
	var g errgroup.Group
	for i, mirror := range m.mirrors {
		g.Go(func() error {
			if err := mirror.Overwrite(ctx, next); err != nil {
				m.logger.Warn("mirror save failed", slog.Int("mirror", i), slog.String("err", err.Error()))
			}
			return nil
		})
	}
	g.Wait()
	return nil
}
