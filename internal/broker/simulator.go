package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"traderbot/internal/domain"
)

// Compile-time interface check.
var (
	_ Broker = (*SimulatorBroker)(nil)
	_ Marker = (*SimulatorBroker)(nil)
)

const epsilon = 1e-9

type lot struct {
	qty     float64
	avgCost float64
}

// SimulatorBroker implements the Broker interface for paper trading. It
// tracks cash, positions and orders in memory without making external API
// calls. Market orders fill immediately at the order's RefPrice.
type SimulatorBroker struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	positions    map[string]*lot
	marks        map[string]float64
	orders       map[string]*domain.Order
	now          func() time.Time
}

// NewSimulatorBroker creates a SimulatorBroker holding startingCash and no
// positions.
func NewSimulatorBroker(startingCash float64) *SimulatorBroker {
	return &SimulatorBroker{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]*lot),
		marks:        make(map[string]float64),
		orders:       make(map[string]*domain.Order),
		now:          time.Now,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder fills a market order at order.RefPrice. Buys need enough cash
// and sells need enough shares; otherwise the order is recorded as rejected
// and ErrRejected is returned.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if err := validateOrder(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if order.RefPrice <= 0 {
		return nil, fmt.Errorf("%w: simulator needs a positive reference price", ErrRejected)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	filled := *order
	filled.BrokerID = uuid.NewString()
	if filled.ID == "" {
		filled.ID = filled.BrokerID
	}
	if filled.ClientOrderID == "" {
		filled.ClientOrderID = filled.ID
	}
	filled.Type = domain.OrderTypeMarket
	if filled.CreatedAt.IsZero() {
		filled.CreatedAt = now
	}
	filled.UpdatedAt = now

	if err := b.fill(filled.Symbol, filled.Side, filled.Qty, filled.RefPrice); err != nil {
		filled.Status = domain.OrderStatusRejected
		b.orders[filled.BrokerID] = &filled
		out := filled
		return &out, err
	}
	filled.Status = domain.OrderStatusFilled
	filled.FilledQty = filled.Qty
	filled.FilledAvgPrice = filled.RefPrice
	b.marks[filled.Symbol] = filled.RefPrice
	b.orders[filled.BrokerID] = &filled

	out := filled
	return &out, nil
}

func (b *SimulatorBroker) fill(symbol string, side domain.OrderSide, qty, price float64) error {
	notional := qty * price
	pos := b.positions[symbol]

	switch side {
	case domain.OrderSideBuy:
		if notional > b.cash+epsilon {
			return fmt.Errorf("%w: insufficient cash for %.4f %s", ErrRejected, qty, symbol)
		}
		if pos == nil {
			pos = &lot{}
			b.positions[symbol] = pos
		}
		newQty := pos.qty + qty
		pos.avgCost = (pos.avgCost*pos.qty + notional) / newQty
		pos.qty = newQty
		b.cash -= notional
	case domain.OrderSideSell:
		if pos == nil || pos.qty+epsilon < qty {
			return fmt.Errorf("%w: insufficient position to sell %.4f %s", ErrRejected, qty, symbol)
		}
		b.realizedPnL += (price - pos.avgCost) * qty
		b.cash += notional
		pos.qty -= qty
		if pos.qty <= epsilon {
			delete(b.positions, symbol)
		}
	}
	return nil
}

// CancelOrder fails for every known order: simulated market orders are
// filled or rejected on submission.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return fmt.Errorf("order %s is %s and cannot be cancelled", orderID, o.Status)
}

// Mark records the latest price for symbol, used to value the position.
func (b *SimulatorBroker) Mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	b.mu.Lock()
	b.marks[symbol] = price
	b.mu.Unlock()
}

// GetPositions returns all simulated positions sorted by symbol.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]domain.Position, 0, len(b.positions))
	for sym, p := range b.positions {
		positions = append(positions, domain.Position{
			Symbol:        sym,
			Qty:           p.qty,
			Side:          domain.PositionSideLong,
			AvgEntryPrice: p.avgCost,
			MarketValue:   p.qty * b.markLocked(sym, p),
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// GetAccount returns cash and equity marked at the latest known prices.
// Buying power equals cash since the simulator does not lend.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for sym, p := range b.positions {
		equity += p.qty * b.markLocked(sym, p)
	}
	return &domain.AccountInfo{
		Equity:      equity,
		Cash:        b.cash,
		BuyingPower: b.cash,
	}, nil
}

// RealizedPnL returns total closed-trade profit and loss.
func (b *SimulatorBroker) RealizedPnL() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realizedPnL
}

func (b *SimulatorBroker) markLocked(symbol string, p *lot) float64 {
	if m, ok := b.marks[symbol]; ok {
		return m
	}
	return p.avgCost
}
