package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tapesim/internal/archive"
	"tapesim/internal/profile"
	"tapesim/internal/report"
	"tapesim/internal/session"
	"tapesim/internal/strategy"

	"github.com/gin-gonic/gin"
)

// Server 提供会话控制与查询的 HTTP API。
type Server struct {
	addr     string
	manager  *session.Manager
	store    *archive.Store
	profiles *profile.Registry
	advisor  bool
	router   *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr           string
	Manager        *session.Manager
	Store          *archive.Store
	Profiles       *profile.Registry
	AdvisorEnabled bool
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("manager 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8087"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s := &Server{
		addr:     cfg.Addr,
		manager:  cfg.Manager,
		store:    cfg.Store,
		profiles: cfg.Profiles,
		advisor:  cfg.AdvisorEnabled,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/strategies", s.handleStrategies)
	api.GET("/profiles", s.handleProfiles)

	api.POST("/sessions", s.handleCreate)
	api.GET("/sessions", s.handleListActive)
	api.GET("/sessions/history", s.handleListHistory)
	api.GET("/sessions/:id", s.handleDetail)
	api.GET("/sessions/:id/summary", s.handleSummary)
	api.GET("/sessions/:id/trades", s.handleTrades)
	api.GET("/sessions/:id/risks", s.handleRisks)
	api.GET("/sessions/:id/decisions", s.handleDecisions)
	api.GET("/sessions/:id/equity", s.handleEquity)
	api.GET("/sessions/:id/report", s.handleReport)
	api.GET("/sessions/:id/report.png", s.handleReportPNG)
	api.POST("/sessions/:id/start", s.handleStart)
	api.POST("/sessions/:id/pause", s.handlePause)
	api.POST("/sessions/:id/resume", s.handleResume)
	api.POST("/sessions/:id/stop", s.handleStop)

	api.GET("/archive", s.handleArchiveList)
	api.GET("/archive/:id", s.handleArchiveDetail)
	api.GET("/archive/:id/equity", s.handleArchiveEquity)
}

// Router 暴露给测试使用。
func (s *Server) Router() http.Handler {
	return s.router
}

type createRequest struct {
	Symbol           string           `json:"symbol" binding:"required"`
	StartTS          int64            `json:"start_ts" binding:"required"`
	EndTS            int64            `json:"end_ts" binding:"required"`
	Strategy         string           `json:"strategy"`
	Profile          string           `json:"profile"`
	InitialCapital   float64          `json:"initial_capital" binding:"required"`
	SpeedFactor      float64          `json:"speed_factor"`
	RiskPerTrade     float64          `json:"risk_per_trade"`
	MaxDrawdownLimit float64          `json:"max_drawdown_limit"`
	MaxExposureLimit float64          `json:"max_exposure_limit"`
	HistoryWindow    int              `json:"history_window"`
	Params           *strategy.Params `json:"params"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := session.Config{
		Symbol:           req.Symbol,
		StartTS:          req.StartTS,
		EndTS:            req.EndTS,
		Strategy:         req.Strategy,
		InitialCapital:   req.InitialCapital,
		SpeedFactor:      req.SpeedFactor,
		RiskPerTrade:     req.RiskPerTrade,
		MaxDrawdownLimit: req.MaxDrawdownLimit,
		MaxExposureLimit: req.MaxExposureLimit,
		HistoryWindow:    req.HistoryWindow,
	}
	cfg.Params = s.resolveParams(req)
	view, err := s.manager.CreateSession(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": view})
}

// resolveParams 参数优先级：请求显式 params > profile 预设 > 策略默认值。
func (s *Server) resolveParams(req createRequest) strategy.Params {
	if req.Params != nil {
		return req.Params.Normalize()
	}
	if s.profiles != nil {
		if req.Profile != "" {
			if p, ok := s.profiles.Profile(req.Profile); ok {
				return p.Params
			}
		}
		return s.profiles.ParamsFor(req.Strategy)
	}
	return strategy.DefaultParams()
}

func (s *Server) handleStart(c *gin.Context) {
	s.control(c, s.manager.StartSession)
}

func (s *Server) handlePause(c *gin.Context) {
	s.control(c, s.manager.PauseSession)
}

func (s *Server) handleResume(c *gin.Context) {
	s.control(c, s.manager.ResumeSession)
}

func (s *Server) handleStop(c *gin.Context) {
	s.control(c, s.manager.StopSession)
}

func (s *Server) control(c *gin.Context, op func(string) error) {
	id := c.Param("id")
	if err := op(id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	view, err := s.manager.GetSession(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// statusFor 把会话错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoHistoricalData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleListActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.ListActive()})
}

func (s *Server) handleListHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.ListHistory()})
}

func (s *Server) handleDetail(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.manager.GetSummary(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) handleTrades(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": view.Trades})
}

func (s *Server) handleRisks(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_events": view.RiskEvents})
}

func (s *Server) handleDecisions(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": view.Decisions})
}

func (s *Server) handleEquity(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": view.Metrics.EquityCurve})
}

func (s *Server) handleReport(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	html, err := report.RenderHTML(view)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleReportPNG(c *gin.Context) {
	view, err := s.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	png, err := report.RenderPNG(c.Request.Context(), view)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleStrategies(c *gin.Context) {
	names := strategy.BuiltinNames()
	if s.advisor {
		names = append(names, strategy.AdvisorStrategyID)
	}
	c.JSON(http.StatusOK, gin.H{"strategies": names})
}

func (s *Server) handleProfiles(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile registry 未启用"})
		return
	}
	snap := s.profiles.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "profiles": snap.Profiles})
}

func (s *Server) handleArchiveList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "归档存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (s *Server) handleArchiveDetail(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "归档存储未启用"})
		return
	}
	rec, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": rec})
}

func (s *Server) handleArchiveEquity(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "归档存储未启用"})
		return
	}
	points, err := s.store.ListEquity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": points})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
