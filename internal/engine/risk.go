package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"traderbot/internal/domain"
)

// ErrRiskLimit is returned when an order would breach a risk rule.
var ErrRiskLimit = errors.New("risk limit exceeded")

// RiskManager enforces pre-trade risk rules such as position sizing limits
// and maximum daily loss constraints. Sells always pass.
type RiskManager struct {
	maxPositionPct  float64
	maxDailyLossPct float64

	mu       sync.Mutex
	day      string
	dayStart float64
	now      func() time.Time
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
// Non-positive values disable the corresponding rule.
//
//   - maxPositionPct: maximum fraction of equity allowed in a single buy
//     (e.g. 0.10 for 10%).
//   - maxDailyLossPct: fraction of the day's opening equity that may be lost
//     before new buys are blocked (e.g. 0.02 for 2%).
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:  maxPositionPct,
		maxDailyLossPct: maxDailyLossPct,
		now:             time.Now,
	}
}

// MaxNotional returns the buy notional allowed for the account, or +Inf when
// position sizing is not limited.
func (rm *RiskManager) MaxNotional(acct *domain.AccountInfo) float64 {
	if rm.maxPositionPct <= 0 || acct == nil {
		return math.Inf(1)
	}
	return acct.Equity * rm.maxPositionPct
}

// CheckOrder evaluates whether the proposed order complies with the
// configured risk limits given the current account state. The first equity
// seen on each calendar day is the baseline for the daily loss rule.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, acct *domain.AccountInfo) error {
	if acct == nil {
		return fmt.Errorf("%w: no account snapshot", ErrRiskLimit)
	}
	dayStart := rm.observe(acct.Equity)
	if order.Side != domain.OrderSideBuy {
		return nil
	}

	if order.RefPrice > 0 {
		notional := order.Qty * order.RefPrice
		if limit := rm.MaxNotional(acct); notional > limit+1e-9 {
			return fmt.Errorf("%w: buy notional %.2f exceeds %.2f", ErrRiskLimit, notional, limit)
		}
	}
	if rm.maxDailyLossPct > 0 && dayStart > 0 {
		floor := dayStart * (1 - rm.maxDailyLossPct)
		if acct.Equity < floor {
			return fmt.Errorf("%w: equity %.2f below daily floor %.2f", ErrRiskLimit, acct.Equity, floor)
		}
	}
	return nil
}

func (rm *RiskManager) observe(equity float64) float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	day := rm.now().Format("2006-01-02")
	if day != rm.day {
		rm.day = day
		rm.dayStart = equity
	}
	return rm.dayStart
}
