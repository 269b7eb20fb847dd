package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tapesim/internal/logger"
	"tapesim/internal/market"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type tickModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	Symbol    string  `gorm:"column:symbol;uniqueIndex:idx_symbol_ts,priority:1"`
	Timestamp int64   `gorm:"column:timestamp;uniqueIndex:idx_symbol_ts,priority:2"`
	Open      float64 `gorm:"column:open"`
	High      float64 `gorm:"column:high"`
	Low       float64 `gorm:"column:low"`
	Close     float64 `gorm:"column:close"`
	Volume    float64 `gorm:"column:volume"`
}

func (tickModel) TableName() string { return "ticks" }

// seriesModel 记录每个品种的生成参数，便于排查缓存内容的来源。
type seriesModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (seriesModel) TableName() string { return "tick_series" }

// Service 历史行情服务：合成生成 + SQLite 缓存。
// 缓存命中时直接回放库内序列，未命中时生成并回填。
type Service struct {
	gen *Generator
	db  *gorm.DB
}

// NewService 打开缓存库；path 为空时退化为纯生成模式。
func NewService(path string) (*Service, error) {
	svc := &Service{gen: NewGenerator()}
	path = strings.TrimSpace(path)
	if path == "" {
		return svc, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开行情缓存失败: %w", err)
	}
	if err := db.AutoMigrate(&tickModel{}, &seriesModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	svc.db = db
	return svc, nil
}

// Close 关闭缓存库连接。
func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetHistoricalData 返回 [start,end] 区间内按间隔对齐的 tick，时间升序。
func (s *Service) GetHistoricalData(ctx context.Context, symbol string, start, end int64) ([]market.Tick, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if start > end {
		return nil, fmt.Errorf("区间非法: start=%d end=%d", start, end)
	}
	if s.db == nil {
		return s.gen.Generate(symbol, start, end), nil
	}
	expected := expectedCount(start, end, DefaultTickIntervalMS)
	cached, err := s.loadCached(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(cached) == expected {
		return cached, nil
	}
	ticks := s.gen.Generate(symbol, start, end)
	if err := s.storeTicks(ctx, symbol, ticks); err != nil {
		// 回填失败不阻塞回放，下次请求重试。
		logger.Warnf("[history] %s 缓存回填失败: %v", symbol, err)
	}
	return ticks, nil
}

func expectedCount(start, end, interval int64) int {
	first := start
	if rem := first % interval; rem != 0 {
		first += interval - rem
	}
	if first > end {
		return 0
	}
	return int((end-first)/interval) + 1
}

func (s *Service) loadCached(ctx context.Context, symbol string, start, end int64) ([]market.Tick, error) {
	var models []tickModel
	if err := s.db.WithContext(ctx).
		Where("symbol = ? AND timestamp BETWEEN ? AND ?", symbol, start, end).
		Order("timestamp ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]market.Tick, 0, len(models))
	for _, m := range models {
		out = append(out, market.Tick{
			Timestamp: m.Timestamp,
			Open:      m.Open,
			High:      m.High,
			Low:       m.Low,
			Close:     m.Close,
			Price:     m.Close,
			Volume:    m.Volume,
		})
	}
	return out, nil
}

func (s *Service) storeTicks(ctx context.Context, symbol string, ticks []market.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	paramsBytes, _ := json.Marshal(s.gen.ParamsFor(symbol))
	series := seriesModel{
		Symbol:        symbol,
		ParamsJSON:    datatypes.JSON(paramsBytes),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	models := make([]tickModel, 0, len(ticks))
	for _, t := range ticks {
		models = append(models, tickModel{
			Symbol:    symbol,
			Timestamp: t.Timestamp,
			Open:      t.Open,
			High:      t.High,
			Low:       t.Low,
			Close:     t.Close,
			Volume:    t.Volume,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoNothing: true,
		}).Create(&series).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
			DoNothing: true,
		}).CreateInBatches(&models, 200).Error
	})
}
