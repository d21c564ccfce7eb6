package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// BacktestResult holds everything a backtest run produced.
type BacktestResult struct {
	RunID    string
	Strategy string
	Symbol   string
	Signal   domain.SignalSeries
	Curve    domain.EquityCurve
	Trades   []domain.Trade
	Report   domain.PerformanceReport
}

// Run converts the result into its persisted summary.
func (r *BacktestResult) Run(params map[string]string) domain.BacktestRun {
	return domain.BacktestRun{
		ID:        r.RunID,
		Strategy:  r.Strategy,
		Symbol:    r.Symbol,
		Params:    params,
		Report:    r.Report,
		CreatedAt: time.Now().UTC(),
	}
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	store          store.BarStore
	registry       *Registry
	sim            SimConfig
	periodsPerYear int
	log            *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry. barStore may be nil when only
// RunSeries is used.
func NewBacktester(barStore store.BarStore, registry *Registry, sim SimConfig, periodsPerYear int) *Backtester {
	return &Backtester{
		store:          barStore,
		registry:       registry,
		sim:            sim,
		periodsPerYear: periodsPerYear,
		log:            slog.Default().With("component", "backtester"),
	}
}

// Run executes a backtest for the named strategy over one symbol and date
// range. Zero start or end leaves that side of the range open.
func (bt *Backtester) Run(ctx context.Context, strategyName, symbol string, start, end time.Time) (*BacktestResult, error) {
	if bt.store == nil {
		return nil, fmt.Errorf("%w: backtester has no bar store", domain.ErrConfiguration)
	}
	s, err := bt.registry.Lookup(strategyName)
	if err != nil {
		return nil, err
	}

	bars, err := bt.store.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	series, err := domain.NewPriceSeries(symbol, bars)
	if err != nil {
		return nil, err
	}
	return bt.RunSeries(s, series)
}

// RunSeries executes a backtest of s over an in-memory series.
func (bt *Backtester) RunSeries(s Strategy, series domain.PriceSeries) (*BacktestResult, error) {
	signal, err := s.GenerateSignal(series)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
	}
	curve, trades, err := Simulate(series, signal, bt.sim)
	if err != nil {
		return nil, err
	}

	res := &BacktestResult{
		RunID:    uuid.NewString(),
		Strategy: s.Name(),
		Symbol:   series.Symbol(),
		Signal:   signal,
		Curve:    curve,
		Trades:   trades,
		Report:   SummarizeWithPeriods(curve, trades, bt.periodsPerYear),
	}
	bt.log.Info("backtest complete",
		"run_id", res.RunID,
		"strategy", res.Strategy,
		"symbol", res.Symbol,
		"bars", series.Len(),
		"trades", len(trades),
		"total_return", res.Report.TotalReturn,
	)
	return res, nil
}
