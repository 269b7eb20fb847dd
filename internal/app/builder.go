package app

import (
	"fmt"

	"tapesim/internal/advisor"
	"tapesim/internal/archive"
	"tapesim/internal/config"
	"tapesim/internal/history"
	"tapesim/internal/logger"
	"tapesim/internal/profile"
	"tapesim/internal/session"
	"tapesim/internal/strategy"
	httpapi "tapesim/internal/transport/http"
)

// buildApp 按依赖顺序装配：行情缓存 → 归档 → 顾问 → 预设 → 管理器 → HTTP。
func buildApp(cfg *config.Config) (*App, error) {
	ticks, err := history.NewService(cfg.Data.CacheDB)
	if err != nil {
		return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
	}

	var store *archive.Store
	if cfg.Data.ArchiveDir != "" {
		store, err = archive.NewStore(cfg.Data.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("初始化归档存储失败: %w", err)
		}
	}

	var advisorFn strategy.AdvisorFunc
	if cfg.Advisor.Enabled {
		client, err := advisor.NewClient(advisor.Config{
			Endpoint: cfg.Advisor.Endpoint,
			APIKey:   cfg.Advisor.APIKey,
			Timeout:  cfg.Advisor.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("初始化外部顾问失败: %w", err)
		}
		advisorFn = client.Func()
	}

	var profiles *profile.Registry
	if cfg.Profiles.Path != "" {
		profiles, err = profile.NewRegistry(cfg.Profiles.Path)
		if err != nil {
			logger.Warnf("加载策略预设失败，回退默认参数: %v", err)
			profiles = nil
		}
	}

	fanout := session.NewFanout()
	fanout.Subscribe(logSessionEvents)

	managerCfg := session.ManagerConfig{
		Source:          ticks,
		Sink:            fanout,
		Advisor:         advisorFn,
		BaseInterval:    cfg.Replay.BaseInterval(),
		MinTickInterval: cfg.Replay.MinTickInterval(),
		MaxConcurrent:   cfg.Replay.MaxConcurrent,
	}
	// 归档未启用时 store 为 nil 指针，直接赋给接口字段会得到非 nil 接口
	if store != nil {
		managerCfg.Archiver = store
	}
	manager, err := session.NewManager(managerCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化会话管理器失败: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr(),
		Manager:        manager,
		Store:          store,
		Profiles:       profiles,
		AdvisorEnabled: cfg.Advisor.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		manager: manager,
		server:  server,
		ticks:   ticks,
		store:   store,
	}, nil
}

func logSessionEvents(evt session.Event) {
	switch evt.Type {
	case session.EventTickProcessed:
		if evt.Decision != nil && evt.Portfolio != nil {
			logger.Debugf("[event] %s tick ts=%d action=%s total=%.2f",
				evt.SessionID, evt.Timestamp, evt.Decision.Action, evt.Portfolio.TotalValue)
		}
	case session.EventTradeExecuted:
		// 成交在回放循环里已经打过日志
	default:
		logger.Infof("[event] %s %s", evt.SessionID, evt.Type)
	}
}
