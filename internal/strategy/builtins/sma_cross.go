// Package builtins provides built-in strategy implementations that ship with
// traderbot.
package builtins

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a long-only moving average crossover. It is LONG on every bar
// where the fast simple moving average of closes is strictly above the slow
// one, and FLAT everywhere else, including bars before the slow average is
// defined.
type SMACross struct {
	fast int
	slow int
}

// NewSMACross creates an SMACross with the given fast and slow windows.
// fast must be at least 1 and slow must be greater than fast.
func NewSMACross(fast, slow int) (*SMACross, error) {
	if fast < 1 {
		return nil, fmt.Errorf("%w: fast window must be >= 1, got %d", domain.ErrConfiguration, fast)
	}
	if slow <= fast {
		return nil, fmt.Errorf("%w: slow window (%d) must be greater than fast window (%d)", domain.ErrConfiguration, slow, fast)
	}
	return &SMACross{fast: fast, slow: slow}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Warmup returns the slow window.
func (s *SMACross) Warmup() int { return s.slow }

// Windows returns the fast and slow window sizes.
func (s *SMACross) Windows() (fast, slow int) { return s.fast, s.slow }

// GenerateSignal computes the crossover signal for every bar of series.
func (s *SMACross) GenerateSignal(series domain.PriceSeries) (domain.SignalSeries, error) {
	fastMA, slowMA, err := s.Averages(series)
	if err != nil {
		return nil, err
	}

	signal := make(domain.SignalSeries, len(fastMA))
	for i := s.slow - 1; i < len(signal); i++ {
		if fastMA[i] > slowMA[i] {
			signal[i] = domain.SignalLong
		}
	}
	return signal, nil
}

// Averages returns the fast and slow moving averages of closes, with NaN at
// the indices where a window does not have enough history yet.
func (s *SMACross) Averages(series domain.PriceSeries) (fastMA, slowMA []float64, err error) {
	if series.Len() < s.slow {
		return nil, nil, fmt.Errorf("%w: need %d bars for slow window, have %d", domain.ErrInsufficientData, s.slow, series.Len())
	}
	closes := series.Closes()
	return windowMeans(closes, s.fast), windowMeans(closes, s.slow), nil
}

// windowMeans returns, for every index i, the mean of closes[i-w+1:i+1], or
// NaN when fewer than w closes are available. Each mean is taken over its own
// window relative to closes[i], so identical windows give identical values
// regardless of w or of what came earlier in the series.
func windowMeans(closes []float64, w int) []float64 {
	out := make([]float64, len(closes))
	dev := make([]float64, w)
	for i := range closes {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		for j := 0; j < w; j++ {
			dev[j] = closes[i-w+1+j] - closes[i]
		}
		out[i] = closes[i] + talib.Sma(dev, w)[w-1]
	}
	return out
}
