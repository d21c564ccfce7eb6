package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"traderbot/internal/domain"
	"traderbot/internal/store"
	"traderbot/internal/strategy"
)

// BarSource supplies the most recent bars for a symbol, oldest first.
type BarSource interface {
	LatestBars(ctx context.Context, symbol string, n int) ([]domain.Bar, error)
}

// BarSourceFunc adapts a function to BarSource.
type BarSourceFunc func(ctx context.Context, symbol string, n int) ([]domain.Bar, error)

// LatestBars calls f.
func (f BarSourceFunc) LatestBars(ctx context.Context, symbol string, n int) ([]domain.Bar, error) {
	return f(ctx, symbol, n)
}

// Tick actions.
const (
	ActionBuy    = "buy"
	ActionSell   = "sell"
	ActionHold   = "hold"
	ActionClosed = "market_closed"
	ActionError  = "error"
)

// TickResult describes one pass of the trading loop.
type TickResult struct {
	Time    time.Time     `json:"time"`
	Symbol  string        `json:"symbol"`
	BarTime time.Time     `json:"bar_time"`
	Close   float64       `json:"close,omitempty"`
	Signal  string        `json:"signal,omitempty"`
	HeldQty float64       `json:"held_qty"`
	Action  string        `json:"action"`
	Order   *domain.Order `json:"order,omitempty"`
	Error   string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// TraderConfig controls the live trading loop.
type TraderConfig struct {
	Symbol string
	// StrategyID labels persisted signals. Defaults to the strategy name.
	StrategyID string
	// Lookback is the number of bars handed to the strategy each tick.
	Lookback     int
	PollInterval time.Duration
	// MarketOpen gates ticks. Nil trades at every poll.
	MarketOpen func(time.Time) bool
}

// Trader polls for bars, runs a strategy over them and reconciles the
// broker position with the newest signal using market orders.
type Trader struct {
	engine    *Engine
	strat     strategy.Strategy
	bars      BarSource
	signals   store.SignalStore
	cfg       TraderConfig
	log       *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	observers []func(TickResult)
}

// NewTrader creates a Trader. signals may be nil.
func NewTrader(e *Engine, s strategy.Strategy, bars BarSource, signals store.SignalStore, cfg TraderConfig) (*Trader, error) {
	if e == nil || s == nil || bars == nil {
		return nil, fmt.Errorf("%w: trader needs an engine, a strategy and a bar source", domain.ErrConfiguration)
	}
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: trader symbol is empty", domain.ErrConfiguration)
	}
	if cfg.Lookback < s.Warmup() {
		return nil, fmt.Errorf("%w: lookback %d is shorter than %s warmup %d",
			domain.ErrConfiguration, cfg.Lookback, s.Name(), s.Warmup())
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.StrategyID == "" {
		cfg.StrategyID = s.Name()
	}
	return &Trader{
		engine:  e,
		strat:   s,
		bars:    bars,
		signals: signals,
		cfg:     cfg,
		log:     slog.Default().With("component", "trader", "symbol", cfg.Symbol, "strategy", cfg.StrategyID),
		now:     time.Now,
	}, nil
}

// OnTick registers fn to receive every tick result.
func (t *Trader) OnTick(fn func(TickResult)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Run ticks every PollInterval until ctx is cancelled or iterations ticks
// have run. iterations <= 0 runs until cancellation. Tick failures are
// logged and retried at the next poll.
func (t *Trader) Run(ctx context.Context, iterations int) error {
	t.log.Info("trader started", "lookback", t.cfg.Lookback, "poll", t.cfg.PollInterval, "broker", t.engine.BrokerName())
	for i := 0; iterations <= 0 || i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.Tick(ctx)
		if iterations > 0 && i == iterations-1 {
			break
		}
		select {
		case <-ctx.Done():
			t.log.Info("trader stopping")
			return ctx.Err()
		case <-time.After(t.cfg.PollInterval):
		}
	}
	return nil
}

// Tick runs one decision cycle and returns what happened.
func (t *Trader) Tick(ctx context.Context) TickResult {
	res := TickResult{Time: t.now().UTC(), Symbol: t.cfg.Symbol}
	t.tick(ctx, &res)
	if res.Err != nil {
		res.Action = ActionError
		res.Error = res.Err.Error()
		level := slog.LevelError
		if domain.IsCoreError(res.Err) {
			level = slog.LevelWarn
		}
		t.log.Log(ctx, level, "tick failed", "error", res.Err)
	} else {
		t.log.Info("tick", "signal", res.Signal, "close", res.Close, "held", res.HeldQty, "action", res.Action)
	}

	t.mu.Lock()
	observers := append([]func(TickResult){}, t.observers...)
	t.mu.Unlock()
	for _, fn := range observers {
		fn(res)
	}
	return res
}

func (t *Trader) tick(ctx context.Context, res *TickResult) {
	if t.cfg.MarketOpen != nil && !t.cfg.MarketOpen(res.Time) {
		res.Action = ActionClosed
		return
	}

	bars, err := t.bars.LatestBars(ctx, t.cfg.Symbol, t.cfg.Lookback)
	if err != nil {
		res.Err = fmt.Errorf("loading bars: %w", err)
		return
	}
	series, err := domain.NewPriceSeries(t.cfg.Symbol, bars)
	if err != nil {
		res.Err = err
		return
	}
	signal, err := t.strat.GenerateSignal(series)
	if err != nil {
		res.Err = err
		return
	}
	last := series.Last()
	target := signal.Last()
	res.BarTime = last.Timestamp
	res.Close = last.Close
	res.Signal = target.String()
	t.engine.Mark(t.cfg.Symbol, last.Close)
	t.recordSignal(ctx, target, last)

	held, err := t.engine.PositionQty(ctx, t.cfg.Symbol)
	if err != nil {
		res.Err = fmt.Errorf("reading position: %w", err)
		return
	}
	res.HeldQty = held

	switch {
	case target == domain.SignalLong && held <= 0:
		t.buy(ctx, res, last.Close)
	case target == domain.SignalFlat && held > 0:
		t.submit(ctx, res, ActionSell, &domain.Order{
			Symbol:   t.cfg.Symbol,
			Side:     domain.OrderSideSell,
			Qty:      held,
			RefPrice: last.Close,
		})
	default:
		res.Action = ActionHold
	}
}

func (t *Trader) buy(ctx context.Context, res *TickResult, price float64) {
	acct, err := t.engine.GetAccount(ctx)
	if err != nil {
		res.Err = fmt.Errorf("reading account: %w", err)
		return
	}
	budget := math.Min(acct.Cash, t.engine.MaxNotional(acct))
	qty := math.Floor(budget / price)
	if !(qty >= 1) {
		res.Action = ActionHold
		t.log.Warn("not enough buying power for one share", "cash", acct.Cash, "price", price)
		return
	}
	t.submit(ctx, res, ActionBuy, &domain.Order{
		Symbol:   t.cfg.Symbol,
		Side:     domain.OrderSideBuy,
		Qty:      qty,
		RefPrice: price,
	})
}

func (t *Trader) submit(ctx context.Context, res *TickResult, action string, order *domain.Order) {
	order.Type = domain.OrderTypeMarket
	placed, err := t.engine.SubmitOrder(ctx, order)
	if err != nil {
		if errors.Is(err, ErrRiskLimit) {
			res.Action = ActionHold
			t.log.Warn("order blocked", "side", order.Side, "qty", order.Qty, "error", err)
			return
		}
		res.Err = err
		return
	}
	res.Action = action
	res.Order = placed
}

func (t *Trader) recordSignal(ctx context.Context, value domain.Signal, bar domain.Bar) {
	if t.signals == nil {
		return
	}
	rec := &domain.SignalRecord{
		StrategyID: t.cfg.StrategyID,
		Symbol:     t.cfg.Symbol,
		Value:      value,
		Price:      bar.Close,
		BarTime:    bar.Timestamp,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.signals.SaveSignal(ctx, rec); err != nil {
		t.log.Warn("persisting signal failed", "error", err)
	}
}
