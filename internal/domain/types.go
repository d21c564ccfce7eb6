// Package domain defines the core value types shared across traderbot:
// bars, price series, signals, trades, equity curves and the brokerage
// records used by the live trader.
package domain

import "time"

// Market identifies the venue a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
)

// Bar is one OHLCV sample for a fixed time interval.
type Bar struct {
	Symbol     string    `json:"symbol,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Signal is the target position a strategy wants to hold entering the next
// bar.
type Signal int8

const (
	SignalFlat Signal = 0
	SignalLong Signal = 1
)

// String returns "LONG" or "FLAT".
func (s Signal) String() string {
	if s == SignalLong {
		return "LONG"
	}
	return "FLAT"
}

// SignalSeries is a sequence of signals aligned one-to-one with the bars of
// a PriceSeries.
type SignalSeries []Signal

// Last returns the newest signal, or SignalFlat for an empty series.
func (s SignalSeries) Last() Signal {
	if len(s) == 0 {
		return SignalFlat
	}
	return s[len(s)-1]
}

// Transitions returns the indices at which the signal changes value
// relative to the previous bar. Index 0 is reported when the series starts
// LONG.
func (s SignalSeries) Transitions() []int {
	var out []int
	prev := SignalFlat
	for i, v := range s {
		if v != prev {
			out = append(out, i)
		}
		prev = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Backtest output
// ---------------------------------------------------------------------------

// Trade is one round trip simulated by the backtester. A zero ExitTime means
// the position was still held when the series ended; it is encoded as the
// zero time, not omitted.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	Qty        int64     `json:"qty"`
	Commission float64   `json:"commission"`
	PnL        float64   `json:"pnl"`
}

// IsOpen reports whether the trade has not been exited.
func (t Trade) IsOpen() bool { return t.ExitTime.IsZero() }

// UnrealizedPnL marks an open trade at the given price. Closed trades return
// their realized P&L.
func (t Trade) UnrealizedPnL(mark float64) float64 {
	if !t.IsOpen() {
		return t.PnL
	}
	return (mark-t.EntryPrice)*float64(t.Qty) - t.Commission
}

// EquityPoint is the account state marked to market at the close of one bar.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Cash          float64   `json:"cash"`
	Qty           int64     `json:"qty"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
}

// EquityCurve holds one EquityPoint per bar.
type EquityCurve []EquityPoint

// Initial returns the equity at the first bar, or 0 for an empty curve.
func (c EquityCurve) Initial() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[0].Equity
}

// Final returns the equity at the last bar, or 0 for an empty curve.
func (c EquityCurve) Final() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Equity
}

// Values returns the total equity of every point.
func (c EquityCurve) Values() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Equity
	}
	return out
}

// PerformanceReport summarizes an equity curve and its trade log.
type PerformanceReport struct {
	Bars             int     `json:"bars"`
	InitialEquity    float64 `json:"initial_equity"`
	FinalEquity      float64 `json:"final_equity"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TotalTrades      int     `json:"total_trades"`
	ClosedTrades     int     `json:"closed_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
}

// BacktestRun is the persisted summary of one backtest.
type BacktestRun struct {
	ID        string            `json:"id"`
	Strategy  string            `json:"strategy"`
	Symbol    string            `json:"symbol"`
	Params    map[string]string `json:"params,omitempty"`
	Report    PerformanceReport `json:"report"`
	CreatedAt time.Time         `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Brokerage records
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a request to a broker. ID is the local record key and BrokerID
// the brokerage's own identifier. RefPrice is the price the order was sized
// at; the simulator broker fills market orders at it.
type Order struct {
	ID             string      `json:"id"`
	BrokerID       string      `json:"broker_id,omitempty"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            float64     `json:"qty"`
	RefPrice       float64     `json:"ref_price"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PositionSide is the direction of a held position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is a holding reported by a broker.
type Position struct {
	Symbol        string       `json:"symbol"`
	Qty           float64      `json:"qty"`
	Side          PositionSide `json:"side"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	MarketValue   float64      `json:"market_value"`
}

// AccountInfo is a snapshot of the brokerage account.
type AccountInfo struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// SignalRecord is one live-trading decision persisted for auditing.
type SignalRecord struct {
	ID         int64     `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Value      Signal    `json:"value"`
	Price      float64   `json:"price"`
	BarTime    time.Time `json:"bar_time"`
	CreatedAt  time.Time `json:"created_at"`
}
