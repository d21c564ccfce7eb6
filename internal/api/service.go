// Package api exposes backtesting and live trading state over HTTP (gin),
// gRPC and WebSocket.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"traderbot/internal/domain"
	"traderbot/internal/metrics"
	"traderbot/internal/store"
	"traderbot/internal/strategy"
	"traderbot/internal/strategy/builtins"
)

// BacktestRequest asks for one backtest. Zero fields take the service
// defaults. When Bars is set the backtest runs over those bars instead of
// the bar store.
type BacktestRequest struct {
	Strategy   string       `json:"strategy"`
	Symbol     string       `json:"symbol"`
	Start      string       `json:"start,omitempty"`
	End        string       `json:"end,omitempty"`
	Cash       float64      `json:"cash,omitempty"`
	Commission float64      `json:"commission,omitempty"`
	Fast       int          `json:"fast,omitempty"`
	Slow       int          `json:"slow,omitempty"`
	Bars       []domain.Bar `json:"bars,omitempty"`
	// Curve includes the equity curve in the response.
	Curve bool `json:"curve,omitempty"`
}

// BacktestResponse is the outcome of a backtest.
type BacktestResponse struct {
	Run    domain.BacktestRun `json:"run"`
	Trades []domain.Trade     `json:"trades"`
	Curve  domain.EquityCurve `json:"equity_curve,omitempty"`
}

// Defaults fill unset BacktestRequest fields.
type Defaults struct {
	Strategy       string
	Symbol         string
	Cash           float64
	Commission     float64
	Fast           int
	Slow           int
	PeriodsPerYear int
}

// Service runs backtests and serves stored results. It is shared by the
// HTTP and gRPC front ends.
type Service struct {
	bars     store.BarStore
	runs     store.RunStore
	signals  store.SignalStore
	writers  []store.EquityWriter
	defaults Defaults
	log      *slog.Logger
}

// NewService creates a Service. Any store may be nil; the matching
// operations then report a configuration error.
func NewService(bars store.BarStore, runs store.RunStore, signals store.SignalStore, defaults Defaults, writers ...store.EquityWriter) *Service {
	if defaults.PeriodsPerYear <= 0 {
		defaults.PeriodsPerYear = strategy.TradingDaysPerYear
	}
	return &Service{
		bars:     bars,
		runs:     runs,
		signals:  signals,
		writers:  writers,
		defaults: defaults,
		log:      slog.Default().With("component", "api"),
	}
}

// RunBacktest runs, stores and exports one backtest.
func (s *Service) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	req = s.withDefaults(req)
	res, err := s.run(ctx, req)
	metrics.ObserveBacktest(req.Strategy, req.Symbol, reportOf(res), err)
	if err != nil {
		return nil, err
	}

	run := res.Run(paramsOf(req, res.Strategy))
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, run, res.Trades); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}
	for _, w := range s.writers {
		if err := w.WriteEquityCurve(ctx, run.ID, run.Symbol, res.Curve); err != nil {
			s.log.Error("exporting equity curve", "run_id", run.ID, "error", err)
		}
	}

	out := &BacktestResponse{Run: run, Trades: res.Trades}
	if out.Trades == nil {
		out.Trades = []domain.Trade{}
	}
	if req.Curve {
		out.Curve = res.Curve
	}
	return out, nil
}

func (s *Service) run(ctx context.Context, req BacktestRequest) (*strategy.BacktestResult, error) {
	strat, err := builtins.Build(req.Strategy, req.Fast, req.Slow)
	if err != nil {
		return nil, err
	}
	sim := strategy.SimConfig{InitialCash: req.Cash, Commission: req.Commission}
	if len(req.Bars) > 0 {
		series, err := domain.NewPriceSeries(req.Symbol, req.Bars)
		if err != nil {
			return nil, err
		}
		return strategy.NewBacktester(nil, nil, sim, s.defaults.PeriodsPerYear).RunSeries(strat, series)
	}

	if s.bars == nil {
		return nil, fmt.Errorf("%w: no bar store configured; post bars inline", domain.ErrConfiguration)
	}
	start, err := parseDate(req.Start, false)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(req.End, true)
	if err != nil {
		return nil, err
	}
	registry := strategy.NewRegistry()
	registry.Register(strat)
	bt := strategy.NewBacktester(s.bars, registry, sim, s.defaults.PeriodsPerYear)
	return bt.Run(ctx, strat.Name(), req.Symbol, start, end)
}

// ListRuns returns the newest runs first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: no run store configured", domain.ErrConfiguration)
	}
	if limit <= 0 {
		limit = 50
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if runs == nil && err == nil {
		runs = []domain.BacktestRun{}
	}
	return runs, err
}

// GetRun returns a stored run with its trades.
func (s *Service) GetRun(ctx context.Context, id string) (*BacktestResponse, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: no run store configured", domain.ErrConfiguration)
	}
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	trades, err := s.runs.RunTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return &BacktestResponse{Run: *run, Trades: trades}, nil
}

// ListSignals returns recent live trading decisions for a strategy, the
// default strategy when strategyID is empty.
func (s *Service) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error) {
	if s.signals == nil {
		return nil, fmt.Errorf("%w: no signal store configured", domain.ErrConfiguration)
	}
	if strategyID == "" {
		if st, err := builtins.Build(s.defaults.Strategy, s.defaults.Fast, s.defaults.Slow); err == nil {
			strategyID = st.Name()
		}
	}
	if limit <= 0 {
		limit = 100
	}
	recs, err := s.signals.ListSignals(ctx, strategyID, limit)
	if recs == nil && err == nil {
		recs = []domain.SignalRecord{}
	}
	return recs, err
}

func (s *Service) withDefaults(req BacktestRequest) BacktestRequest {
	d := s.defaults
	if req.Strategy == "" {
		req.Strategy = d.Strategy
	}
	if req.Symbol == "" {
		req.Symbol = d.Symbol
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Cash == 0 {
		req.Cash = d.Cash
	}
	if req.Commission == 0 {
		req.Commission = d.Commission
	}
	if req.Fast == 0 {
		req.Fast = d.Fast
	}
	if req.Slow == 0 {
		req.Slow = d.Slow
	}
	return req
}

func paramsOf(req BacktestRequest, strategyName string) map[string]string {
	p := map[string]string{
		"cash":       strconv.FormatFloat(req.Cash, 'f', -1, 64),
		"commission": strconv.FormatFloat(req.Commission, 'f', -1, 64),
	}
	if strategyName != (builtins.BuyAndHold{}).Name() {
		p["fast"] = strconv.Itoa(req.Fast)
		p["slow"] = strconv.Itoa(req.Slow)
	}
	if req.Start != "" {
		p["start"] = req.Start
	}
	if req.End != "" {
		p["end"] = req.End
	}
	if len(req.Bars) > 0 {
		p["source"] = "inline"
	}
	return p
}

func reportOf(res *strategy.BacktestResult) domain.PerformanceReport {
	if res == nil {
		return domain.PerformanceReport{}
	}
	return res.Report
}

// parseDate parses YYYY-MM-DD or RFC 3339. Date-only ends cover the whole
// day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", domain.ErrConfiguration, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
