package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"traderbot/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore, SignalStore and RunStore backed by a
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// migrations are applied in order on every open; each statement is
// idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		broker_id        TEXT NOT NULL DEFAULT '',
		client_order_id  TEXT NOT NULL DEFAULT '',
		symbol           TEXT NOT NULL,
		side             TEXT NOT NULL,
		type             TEXT NOT NULL,
		qty              REAL NOT NULL,
		ref_price        REAL NOT NULL DEFAULT 0,
		filled_qty       REAL NOT NULL DEFAULT 0,
		filled_avg_price REAL NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		value       INTEGER NOT NULL,
		price       REAL NOT NULL,
		bar_time    TEXT NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, id)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id                TEXT PRIMARY KEY,
		strategy          TEXT NOT NULL,
		symbol            TEXT NOT NULL,
		params            TEXT NOT NULL DEFAULT '{}',
		bars              INTEGER NOT NULL,
		initial_equity    REAL NOT NULL,
		final_equity      REAL NOT NULL,
		total_return      REAL NOT NULL,
		annualized_return REAL NOT NULL,
		volatility        REAL NOT NULL,
		sharpe_ratio      REAL NOT NULL,
		max_drawdown      REAL NOT NULL,
		total_trades      INTEGER NOT NULL,
		closed_trades     INTEGER NOT NULL,
		win_rate          REAL NOT NULL,
		profit_factor     REAL NOT NULL,
		created_at        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id      TEXT NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		entry_time  TEXT NOT NULL,
		exit_time   TEXT NOT NULL DEFAULT '',
		entry_price REAL NOT NULL,
		exit_price  REAL NOT NULL,
		qty         INTEGER NOT NULL,
		commission  REAL NOT NULL,
		pnl         REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

const orderColumns = `id, broker_id, client_order_id, symbol, side, type, qty, ref_price,
	filled_qty, filled_avg_price, status, created_at, updated_at`

// SaveOrder inserts a new order into the database.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BrokerID, o.ClientOrderID, o.Symbol, string(o.Side), string(o.Type), o.Qty, o.RefPrice,
		o.FilledQty, o.FilledAvgPrice, string(o.Status), formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %s: %w", id, err)
	}
	return o, nil
}

// ListOrders returns all orders matching the given status, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// UpdateOrder persists changes to an existing order.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *domain.Order) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET broker_id = ?, client_order_id = ?, filled_qty = ?, filled_avg_price = ?,
			status = ?, updated_at = ? WHERE id = ?`,
		o.BrokerID, o.ClientOrderID, o.FilledQty, o.FilledAvgPrice, string(o.Status), formatTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var (
		o                    domain.Order
		side, typ, status    string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&o.ID, &o.BrokerID, &o.ClientOrderID, &o.Symbol, &side, &typ, &o.Qty, &o.RefPrice,
		&o.FilledQty, &o.FilledAvgPrice, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal record into the database.
func (s *SQLiteStore) SaveSignal(ctx context.Context, rec *domain.SignalRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy_id, symbol, value, price, bar_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.StrategyID, rec.Symbol, int(rec.Value), rec.Price, formatTime(rec.BarTime), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, symbol, value, price, bar_time, created_at
		 FROM signals WHERE strategy_id = ? ORDER BY id DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var (
			r                  domain.SignalRecord
			value              int
			barTime, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.StrategyID, &r.Symbol, &value, &r.Price, &barTime, &createdAt); err != nil {
			return nil, err
		}
		r.Value = domain.Signal(value)
		r.BarTime = parseTime(barTime)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

const runColumns = `id, strategy, symbol, params, bars, initial_equity, final_equity,
	total_return, annualized_return, volatility, sharpe_ratio, max_drawdown,
	total_trades, closed_trades, win_rate, profit_factor, created_at`

// SaveRun stores a backtest run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run domain.BacktestRun, trades []domain.Trade) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding run params: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	r := run.Report
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO backtest_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, string(params), r.Bars, r.InitialEquity, r.FinalEquity,
		r.TotalReturn, r.AnnualizedReturn, r.Volatility, r.SharpeRatio, r.MaxDrawdown,
		r.TotalTrades, r.ClosedTrades, r.WinRate, r.ProfitFactor, formatTime(run.CreatedAt),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i, t := range trades {
		exit := ""
		if !t.IsOpen() {
			exit = formatTime(t.ExitTime)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backtest_trades (run_id, seq, symbol, entry_time, exit_time, entry_price, exit_price, qty, commission, pnl)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, t.Symbol, formatTime(t.EntryTime), exit, t.EntryPrice, t.ExitPrice, t.Qty, t.Commission, t.PnL,
		); err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun returns a stored run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM backtest_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// RunTrades returns the trade log of a run in execution order.
func (s *SQLiteStore) RunTrades(ctx context.Context, id string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, entry_time, exit_time, entry_price, exit_price, qty, commission, pnl
		 FROM backtest_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("listing trades of run %s: %w", id, err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t           domain.Trade
			entry, exit string
		)
		if err := rows.Scan(&t.Symbol, &entry, &exit, &t.EntryPrice, &t.ExitPrice, &t.Qty, &t.Commission, &t.PnL); err != nil {
			return nil, err
		}
		t.EntryTime = parseTime(entry)
		t.ExitTime = parseTime(exit)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*domain.BacktestRun, error) {
	var (
		run       domain.BacktestRun
		params    string
		createdAt string
	)
	r := &run.Report
	if err := sc.Scan(&run.ID, &run.Strategy, &run.Symbol, &params, &r.Bars, &r.InitialEquity, &r.FinalEquity,
		&r.TotalReturn, &r.AnnualizedReturn, &r.Volatility, &r.SharpeRatio, &r.MaxDrawdown,
		&r.TotalTrades, &r.ClosedTrades, &r.WinRate, &r.ProfitFactor, &createdAt); err != nil {
		return nil, err
	}
	if params != "" && params != "null" {
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("decoding params of run %s: %w", run.ID, err)
		}
	}
	run.CreatedAt = parseTime(createdAt)
	return &run, nil
}

// ---------------------------------------------------------------------------
// Time encoding
// ---------------------------------------------------------------------------

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
