package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tapesim/internal/session"

	_ "modernc.org/sqlite"
)

// Store 管理 sim_sessions/trade/risk/equity 表，保存已完成会话的最终结果。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Record 归档后的会话行。
type Record struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Strategy       string    `json:"strategy"`
	StartTS        int64     `json:"start_ts"`
	EndTS          int64     `json:"end_ts"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	ReturnPct      float64   `json:"return_pct"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Trades         int       `json:"trades"`
	RiskEvents     int       `json:"risk_events"`
	ConfigJSON     string    `json:"config_json"`
	MetricsJSON    string    `json:"metrics_json"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// EquityPoint 归档的权益曲线点。
type EquityPoint struct {
	Seq    int     `json:"seq"`
	Equity float64 `json:"equity"`
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "sessions.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sim_sessions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			initial_capital REAL NOT NULL,
			final_value REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			sharpe_ratio REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			risk_events INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			metrics_json TEXT,
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS sim_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			trade_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			pnl REAL,
			FOREIGN KEY(session_id) REFERENCES sim_sessions(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sim_risk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			observed REAL NOT NULL,
			threshold REAL NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sim_sessions(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sim_equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			equity REAL NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sim_sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_session ON sim_trades(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_session ON sim_risk_events(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_session ON sim_equity(session_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveSession 整会话落库；同 id 重复归档时覆盖旧记录。
func (s *Store) ArchiveSession(ctx context.Context, view session.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("archive store 已关闭")
	}
	cfgJSON, err := json.Marshal(view.Config)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(view.Metrics)
	if err != nil {
		return err
	}
	returnPct := 0.0
	if view.Config.InitialCapital > 0 {
		returnPct = (view.Portfolio.TotalValue - view.Config.InitialCapital) / view.Config.InitialCapital * 100
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sim_sessions WHERE id=?`, view.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sim_sessions
			(id, symbol, strategy, start_ts, end_ts, initial_capital, final_value, return_pct,
			 win_rate, max_drawdown, sharpe_ratio, trades, risk_events, config_json, metrics_json,
			 created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		view.ID, view.Config.Symbol, view.Config.Strategy, view.Config.StartTS, view.Config.EndTS,
		view.Config.InitialCapital, view.Portfolio.TotalValue, returnPct,
		view.Metrics.WinRate, view.Metrics.MaxDrawdown, view.Metrics.SharpeRatio,
		len(view.Trades), len(view.RiskEvents), string(cfgJSON), string(metricsJSON),
		view.CreatedAt, nullableMillis(view.CompletedAt)); err != nil {
		return err
	}
	for _, t := range view.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sim_trades
				(session_id, trade_id, ts, symbol, action, quantity, price, status, reason, pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			view.ID, t.ID, t.Timestamp, t.Symbol, t.Action, t.Quantity, t.Price, t.Status, t.Reason, t.PnL); err != nil {
			return err
		}
	}
	for _, re := range view.RiskEvents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sim_risk_events (session_id, ts, kind, observed, threshold)
			VALUES (?, ?, ?, ?, ?)`,
			view.ID, re.Timestamp, re.Kind, re.Observed, re.Limit); err != nil {
			return err
		}
	}
	for i, eq := range view.Metrics.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sim_equity (session_id, seq, equity) VALUES (?, ?, ?)`,
			view.ID, i, eq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSessions 返回归档会话（完成时间倒序）。
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, start_ts, end_ts, initial_capital, final_value, return_pct,
		       win_rate, max_drawdown, sharpe_ratio, trades, risk_events, config_json, metrics_json,
		       created_at, completed_at
		FROM sim_sessions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSession 按 id 取归档会话。
func (s *Store) GetSession(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, strategy, start_ts, end_ts, initial_capital, final_value, return_pct,
		       win_rate, max_drawdown, sharpe_ratio, trades, risk_events, config_json, metrics_json,
		       created_at, completed_at
		FROM sim_sessions WHERE id=?`, id)
	return scanRecord(row)
}

// ListEquity 返回归档的权益曲线。
func (s *Store) ListEquity(ctx context.Context, id string) ([]EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, equity FROM sim_equity WHERE session_id=? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.Seq, &p.Equity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var metricsStr sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.Symbol, &rec.Strategy, &rec.StartTS, &rec.EndTS,
		&rec.InitialCapital, &rec.FinalValue, &rec.ReturnPct, &rec.WinRate, &rec.MaxDrawdown,
		&rec.SharpeRatio, &rec.Trades, &rec.RiskEvents, &rec.ConfigJSON, &metricsStr,
		&createdAt, &completedAt); err != nil {
		return Record{}, err
	}
	if metricsStr.Valid {
		rec.MetricsJSON = metricsStr.String
	}
	rec.CreatedAt = timeFromMillis(createdAt)
	if completedAt.Valid {
		rec.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	return rec, nil
}

func nullableMillis(ms int64) interface{} {
	if ms <= 0 {
		return nil
	}
	return ms
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
