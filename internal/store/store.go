// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, orders, signals, backtest runs and equity
// curves, together with CSV, Parquet, SQLite and InfluxDB implementations.
package store

import (
	"context"
	"errors"
	"time"

	"traderbot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end], sorted
	// by timestamp. A zero start or end leaves that side unbounded.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available.
	ListSymbols(ctx context.Context) ([]string, error)
}

// OrderStore persists and retrieves order records.
type OrderStore interface {
	// SaveOrder inserts a new order into storage.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns all orders matching the given status. An empty
	// status returns every order.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// UpdateOrder persists changes to an existing order.
	UpdateOrder(ctx context.Context, order *domain.Order) error
}

// SignalStore persists and retrieves live trading decisions.
type SignalStore interface {
	// SaveSignal inserts a new signal record and sets its ID.
	SaveSignal(ctx context.Context, rec *domain.SignalRecord) error

	// ListSignals returns the most recent signals for a strategy, newest
	// first, up to limit.
	ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error)
}

// RunStore persists backtest run summaries and their trade logs.
type RunStore interface {
	// SaveRun stores the run and its trades.
	SaveRun(ctx context.Context, run domain.BacktestRun, trades []domain.Trade) error

	// GetRun returns the run with the given ID or ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.BacktestRun, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error)

	// RunTrades returns the trade log of a run.
	RunTrades(ctx context.Context, id string) ([]domain.Trade, error)
}

// EquityWriter exports an equity curve produced by a backtest run.
type EquityWriter interface {
	WriteEquityCurve(ctx context.Context, runID, symbol string, curve domain.EquityCurve) error
}

// inRange reports whether ts lies in [start, end] with zero bounds open.
func inRange(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && ts.After(end) {
		return false
	}
	return true
}
