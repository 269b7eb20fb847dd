package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tapesim/internal/analytics"
	"tapesim/internal/logger"
	"tapesim/internal/market"
	"tapesim/internal/portfolio"
	"tapesim/internal/risk"
	"tapesim/internal/strategy"

	"github.com/google/uuid"
)

// TickSource 历史行情供给方：按时间升序返回 [start,end] 区间内的 tick。
// 空结果是合法返回，由引擎转换为 ErrNoHistoricalData。
type TickSource interface {
	GetHistoricalData(ctx context.Context, symbol string, start, end int64) ([]market.Tick, error)
}

// Archiver 会话完成后的落库出口。
type Archiver interface {
	ArchiveSession(ctx context.Context, view View) error
}

// ManagerConfig 配置 Manager。
type ManagerConfig struct {
	Source          TickSource
	Sink            Sink
	Archiver        Archiver
	Advisor         strategy.AdvisorFunc
	BaseInterval    time.Duration
	MinTickInterval time.Duration
	MaxConcurrent   int
}

// Manager 持有会话注册表，驱动每个会话的回放循环。
// 注册表并发读写安全；单个会话内的回放状态只由其循环写入。
type Manager struct {
	source          TickSource
	sink            Sink
	archiver        Archiver
	advisor         strategy.AdvisorFunc
	baseInterval    time.Duration
	minTickInterval time.Duration

	sem     chan struct{}
	baseCtx context.Context

	mu      sync.RWMutex
	active  map[string]*Session
	history map[string]*Session
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("tick source 不能为空")
	}
	baseInterval := cfg.BaseInterval
	if baseInterval <= 0 {
		baseInterval = time.Second
	}
	minTick := cfg.MinTickInterval
	if minTick < 0 {
		minTick = 0
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Manager{
		source:          cfg.Source,
		sink:            cfg.Sink,
		archiver:        cfg.Archiver,
		advisor:         cfg.Advisor,
		baseInterval:    baseInterval,
		minTickInterval: minTick,
		sem:             make(chan struct{}, maxConcurrent),
		baseCtx:         context.Background(),
		active:          make(map[string]*Session),
		history:         make(map[string]*Session),
	}, nil
}

// SetContext 注入宿主 ctx，用于关停时终止所有回放循环。
func (m *Manager) SetContext(ctx context.Context) {
	if ctx != nil {
		m.baseCtx = ctx
	}
}

func (m *Manager) ctx() context.Context {
	if m.baseCtx != nil {
		return m.baseCtx
	}
	return context.Background()
}

// CreateSession 校验配置并登记一个 CREATED 会话。
func (m *Manager) CreateSession(cfg Config) (View, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return View{}, err
	}
	engine, err := m.buildEngine(cfg)
	if err != nil {
		return View{}, err
	}
	tracker := analytics.NewTracker()
	tracker.ObserveEquity(cfg.InitialCapital)
	s := &Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		CreatedAt: time.Now().UnixMilli(),
		status:    StatusCreated,
		currentTS: cfg.StartTS,
		engine:    engine,
		pf:        portfolio.New(cfg.InitialCapital),
		monitor:   risk.NewMonitor(cfg.MaxDrawdownLimit, cfg.MaxExposureLimit),
		tracker:   tracker,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.active[s.ID] = s
	m.mu.Unlock()
	logger.Infof("[session] %s 已创建：%s %s 本金=%.2f 速率=%.1fx", s.ID, cfg.Symbol, cfg.Strategy, cfg.InitialCapital, cfg.SpeedFactor)
	return s.Snapshot(), nil
}

func (m *Manager) buildEngine(cfg Config) (*strategy.Engine, error) {
	var strat strategy.Strategy
	if cfg.Strategy == strategy.AdvisorStrategyID {
		if m.advisor == nil {
			return nil, fmt.Errorf("外部顾问未配置")
		}
		strat = strategy.NewAdvisor(m.advisor)
	} else {
		var err error
		strat, err = strategy.New(cfg.Strategy, cfg.Params)
		if err != nil {
			return nil, err
		}
	}
	return strategy.NewEngine(strat, cfg.RiskPerTrade), nil
}

// lookupActive 找到可被控制的活跃会话；已完成会话按请求的目标状态报非法迁移。
func (m *Manager) lookupActive(id string, target Status) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.active[id]; ok {
		return s, nil
	}
	if _, ok := m.history[id]; ok {
		return nil, transitionErr(StatusCompleted, target)
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// StartSession 启动（或从暂停中恢复）回放。
// CREATED 会话先向 TickSource 取数，空序列返回 ErrNoHistoricalData 且状态保持 CREATED。
func (m *Manager) StartSession(id string) error {
	s, err := m.lookupActive(id, StatusRunning)
	if err != nil {
		return err
	}
	s.mu.Lock()
	switch s.status {
	case StatusCreated:
		ticks, err := m.source.GetHistoricalData(m.ctx(), s.Config.Symbol, s.Config.StartTS, s.Config.EndTS)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("获取历史数据失败: %w", err)
		}
		if len(ticks) == 0 {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s [%d,%d]", ErrNoHistoricalData, s.Config.Symbol, s.Config.StartTS, s.Config.EndTS)
		}
		s.ticks = ticks
		s.status = StatusRunning
		s.mu.Unlock()
		// 先发启动事件再起循环，保证订阅方看到 started 在首个 tick 之前
		m.publish(Event{Type: EventSessionStarted, SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
		go m.runLoop(s)
		logger.Infof("[session] %s 启动，tick 数=%d", s.ID, len(ticks))
		return nil
	case StatusPaused:
		s.status = StatusRunning
		s.mu.Unlock()
		m.publish(Event{Type: EventSessionResumed, SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
		return nil
	default:
		from := s.status
		s.mu.Unlock()
		return transitionErr(from, StatusRunning)
	}
}

// PauseSession 请求暂停；在下一个 tick 边界生效，不中断进行中的管线。
func (m *Manager) PauseSession(id string) error {
	s, err := m.lookupActive(id, StatusPaused)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.status != StatusRunning {
		from := s.status
		s.mu.Unlock()
		return transitionErr(from, StatusPaused)
	}
	s.status = StatusPaused
	s.mu.Unlock()
	m.publish(Event{Type: EventSessionPaused, SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
	return nil
}

// ResumeSession 从暂停恢复，游标从暂停位置继续。
func (m *Manager) ResumeSession(id string) error {
	s, err := m.lookupActive(id, StatusRunning)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.status != StatusPaused {
		from := s.status
		s.mu.Unlock()
		return transitionErr(from, StatusRunning)
	}
	s.status = StatusRunning
	s.mu.Unlock()
	m.publish(Event{Type: EventSessionResumed, SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
	return nil
}

// StopSession 置停止标志后立即返回；收尾在循环的下一次迭代完成。
func (m *Manager) StopSession(id string) error {
	s, err := m.lookupActive(id, StatusCompleted)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if !canTransition(s.status, StatusCompleted) {
		from := s.status
		s.mu.Unlock()
		return transitionErr(from, StatusCompleted)
	}
	s.stop = true
	s.mu.Unlock()
	return nil
}

// GetSession 返回活跃或历史会话的只读快照。
func (m *Manager) GetSession(id string) (View, error) {
	m.mu.RLock()
	s, ok := m.active[id]
	if !ok {
		s, ok = m.history[id]
	}
	m.mu.RUnlock()
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Snapshot(), nil
}

// GetSummary 返回会话摘要。
func (m *Manager) GetSummary(id string) (Summary, error) {
	m.mu.RLock()
	s, ok := m.active[id]
	if !ok {
		s, ok = m.history[id]
	}
	m.mu.RUnlock()
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Summarize(), nil
}

// ListActive 返回未完成会话摘要（创建时间倒序）。
func (m *Manager) ListActive() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	return summaries(sessions)
}

// ListHistory 返回已完成会话摘要（创建时间倒序）。
func (m *Manager) ListHistory() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.history))
	for _, s := range m.history {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	return summaries(sessions)
}

func summaries(sessions []*Session) []Summary {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summarize())
	}
	return out
}

func (m *Manager) publish(events ...Event) {
	if m.sink == nil {
		return
	}
	for _, evt := range events {
		m.sink.Publish(evt)
	}
}
