package builtins

import (
	"fmt"

	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

var _ strategy.Strategy = BuyAndHold{}

// BuyAndHold is LONG on every bar. It is the benchmark the crossover is
// compared against.
type BuyAndHold struct{}

// Name returns "buy-and-hold".
func (BuyAndHold) Name() string { return "buy-and-hold" }

// Warmup returns 1.
func (BuyAndHold) Warmup() int { return 1 }

// GenerateSignal returns an all-LONG signal.
func (BuyAndHold) GenerateSignal(series domain.PriceSeries) (domain.SignalSeries, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", domain.ErrInsufficientData)
	}
	signal := make(domain.SignalSeries, series.Len())
	for i := range signal {
		signal[i] = domain.SignalLong
	}
	return signal, nil
}
