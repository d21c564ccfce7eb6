// Package engine coordinates order management, position tracking, and risk
// checking across the trading system, and drives the live trading loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"traderbot/internal/broker"
	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// Engine orchestrates the trading lifecycle by delegating to a broker for
// execution, an order store for persistence, and a risk manager for
// pre-trade checks. The store and risk manager are optional.
type Engine struct {
	broker      broker.Broker
	orders      store.OrderStore
	riskChecker *RiskManager
	log         *slog.Logger
	now         func() time.Time
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(b broker.Broker, orders store.OrderStore, riskChecker *RiskManager) *Engine {
	name := "none"
	if b != nil {
		name = b.Name()
	}
	return &Engine{
		broker:      b,
		orders:      orders,
		riskChecker: riskChecker,
		log:         slog.Default().With("component", "engine", "broker", name),
		now:         time.Now,
	}
}

// BrokerName returns the name of the underlying broker.
func (e *Engine) BrokerName() string {
	return e.broker.Name()
}

// SubmitOrder validates the order against risk rules, records it, forwards
// it to the broker and records the broker's response. Orders refused by the
// risk manager or the broker are stored as rejected.
func (e *Engine) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("nil order")
	}
	now := e.now().UTC()
	o := *order
	o.Symbol = strings.ToUpper(o.Symbol)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = o.ID
	}
	if o.Type == "" {
		o.Type = domain.OrderTypeMarket
	}
	o.Status = domain.OrderStatusNew
	o.CreatedAt = now
	o.UpdatedAt = now

	if e.riskChecker != nil {
		acct, err := e.broker.GetAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading account for risk check: %w", err)
		}
		if err := e.riskChecker.CheckOrder(ctx, &o, acct); err != nil {
			o.Status = domain.OrderStatusRejected
			e.save(ctx, &o)
			e.log.Warn("order blocked by risk", "symbol", o.Symbol, "side", o.Side, "qty", o.Qty, "error", err)
			return nil, err
		}
	}

	if err := e.save(ctx, &o); err != nil {
		return nil, err
	}

	placed, err := e.broker.SubmitOrder(ctx, &o)
	if err != nil {
		o.Status = domain.OrderStatusRejected
		if placed != nil {
			o.BrokerID = placed.BrokerID
		}
		o.UpdatedAt = e.now().UTC()
		e.update(ctx, &o)
		return nil, fmt.Errorf("submitting order %s: %w", o.ID, err)
	}
	placed.ID = o.ID
	if placed.UpdatedAt.IsZero() {
		placed.UpdatedAt = e.now().UTC()
	}
	if err := e.update(ctx, placed); err != nil {
		return placed, err
	}
	e.log.Info("order submitted", "id", placed.ID, "symbol", placed.Symbol, "side", placed.Side,
		"qty", placed.Qty, "status", placed.Status)
	return placed, nil
}

// CancelOrder requests cancellation of an open order. id is the local order
// ID when an order store is configured and the broker's ID otherwise.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if e.orders == nil {
		return e.broker.CancelOrder(ctx, orderID)
	}
	o, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch o.Status {
	case domain.OrderStatusFilled, domain.OrderStatusCancelled, domain.OrderStatusRejected:
		return fmt.Errorf("order %s is already %s", orderID, o.Status)
	}
	brokerID := o.BrokerID
	if brokerID == "" {
		brokerID = o.ID
	}
	if err := e.broker.CancelOrder(ctx, brokerID); err != nil {
		return err
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = e.now().UTC()
	return e.orders.UpdateOrder(ctx, o)
}

// GetPositions returns all currently open positions.
func (e *Engine) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return e.broker.GetPositions(ctx)
}

// GetAccount returns the broker's account snapshot.
func (e *Engine) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	return e.broker.GetAccount(ctx)
}

// PositionQty returns the signed quantity held in symbol, negative for
// shorts and zero when flat.
func (e *Engine) PositionQty(ctx context.Context, symbol string) (float64, error) {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return 0, err
	}
	var qty float64
	for _, p := range positions {
		if !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		if p.Side == domain.PositionSideShort && p.Qty > 0 {
			qty -= p.Qty
		} else {
			qty += p.Qty
		}
	}
	return qty, nil
}

// MaxNotional returns the largest buy the risk manager will accept, or
// +Inf when no limit is configured.
func (e *Engine) MaxNotional(acct *domain.AccountInfo) float64 {
	if e.riskChecker == nil {
		return math.Inf(1)
	}
	return e.riskChecker.MaxNotional(acct)
}

// Mark forwards the latest price to brokers that value positions locally.
func (e *Engine) Mark(symbol string, price float64) {
	if m, ok := e.broker.(broker.Marker); ok {
		m.Mark(symbol, price)
	}
}

func (e *Engine) save(ctx context.Context, o *domain.Order) error {
	if e.orders == nil {
		return nil
	}
	if err := e.orders.SaveOrder(ctx, o); err != nil {
		return fmt.Errorf("persisting order: %w", err)
	}
	return nil
}

func (e *Engine) update(ctx context.Context, o *domain.Order) error {
	if e.orders == nil {
		return nil
	}
	if err := e.orders.UpdateOrder(ctx, o); err != nil {
		return fmt.Errorf("persisting order update: %w", err)
	}
	return nil
}
