package strategy

import (
	"fmt"
	"math"

	"traderbot/internal/domain"
)

// SimConfig holds the account parameters of a simulation.
type SimConfig struct {
	// InitialCash is the starting cash balance; must be positive.
	InitialCash float64
	// Commission is a flat fee charged on every fill; zero disables it.
	Commission float64
}

// Validate checks the simulation parameters.
func (c SimConfig) Validate() error {
	if !(c.InitialCash > 0) || math.IsInf(c.InitialCash, 0) {
		return fmt.Errorf("%w: initial cash must be positive, got %v", domain.ErrConfiguration, c.InitialCash)
	}
	if c.Commission < 0 || math.IsNaN(c.Commission) {
		return fmt.Errorf("%w: commission must be non-negative, got %v", domain.ErrConfiguration, c.Commission)
	}
	return nil
}

// Simulate replays signal over series and returns the equity curve and trade
// log of a long-only, all-in account.
//
// Bar 0 always starts flat. At bar i the account moves towards signal[i-1],
// filling at bar i's close. Entries buy as many whole shares as the cash
// allows after commission; exits sell the whole holding. A position still
// held after the last bar stays open in the trade log.
//
// Every input is validated before the loop starts, so an error never comes
// with a partial result. Neither series nor signal is modified.
func Simulate(series domain.PriceSeries, signal domain.SignalSeries, cfg SimConfig) (domain.EquityCurve, []domain.Trade, error) {
	n := series.Len()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: cannot simulate an empty series", domain.ErrInsufficientData)
	}
	if len(signal) != n {
		return nil, nil, fmt.Errorf("%w: signal length %d does not match series length %d", domain.ErrConfiguration, len(signal), n)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	for i := 0; i < n; i++ {
		b := series.At(i)
		if !(b.Close > 0) || b.Open < 0 || b.High < 0 || b.Low < 0 {
			return nil, nil, fmt.Errorf("%w: bar %d has non-positive price (close %v)", domain.ErrInvalidData, i, b.Close)
		}
	}

	var (
		cash   = cfg.InitialCash
		qty    int64
		open   *domain.Trade
		trades []domain.Trade
		curve  = make(domain.EquityCurve, 0, n)
	)

	for i := 0; i < n; i++ {
		bar := series.At(i)
		price := bar.Close

		if i > 0 {
			target := signal[i-1]
			switch {
			case target == domain.SignalLong && qty == 0:
				shares := int64(math.Floor((cash - cfg.Commission) / price))
				for shares > 0 && float64(shares)*price+cfg.Commission > cash {
					shares--
				}
				if shares > 0 {
					cash -= float64(shares)*price + cfg.Commission
					qty = shares
					open = &domain.Trade{
						Symbol:     series.Symbol(),
						EntryTime:  bar.Timestamp,
						EntryPrice: price,
						Qty:        shares,
						Commission: cfg.Commission,
					}
				}

			case target == domain.SignalFlat && qty > 0:
				proceeds := float64(qty) * price
				fee := math.Min(cfg.Commission, cash+proceeds)
				cash += proceeds - fee
				open.ExitTime = bar.Timestamp
				open.ExitPrice = price
				open.Commission += fee
				open.PnL = (open.ExitPrice-open.EntryPrice)*float64(open.Qty) - open.Commission
				trades = append(trades, *open)
				open = nil
				qty = 0
			}
		}

		value := float64(qty) * price
		curve = append(curve, domain.EquityPoint{
			Timestamp:     bar.Timestamp,
			Cash:          cash,
			Qty:           qty,
			PositionValue: value,
			Equity:        cash + value,
		})
	}

	if open != nil {
		trades = append(trades, *open)
	}
	return curve, trades, nil
}
