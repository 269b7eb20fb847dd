package app

import (
	"context"
	"fmt"

	"tapesim/internal/archive"
	"tapesim/internal/config"
	"tapesim/internal/history"
	"tapesim/internal/logger"
	"tapesim/internal/session"
	httpapi "tapesim/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg     *config.Config
	manager *session.Manager
	server  *httpapi.Server
	ticks   *history.Service
	store   *archive.Store
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)
	return buildApp(cfg)
}

// Manager 暴露会话管理器（供测试使用）。
func (a *App) Manager() *session.Manager {
	if a == nil {
		return nil
	}
	return a.manager
}

// Run 启动 HTTP 服务，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.manager.SetContext(ctx)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		a.Close()
		return nil
	})

	logger.Infof("✓ tapesim 启动，监听 %s", a.cfg.Server.Addr())
	return group.Wait()
}

// Close 释放存储连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.ticks != nil {
		if err := a.ticks.Close(); err != nil {
			logger.Warnf("关闭行情缓存失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭归档存储失败: %v", err)
		}
	}
}
