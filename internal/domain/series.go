package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceSeries is a validated, time-ordered sequence of bars. The zero value
// is an empty series; use NewPriceSeries to build a non-empty one.
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// NewPriceSeries copies bars into a PriceSeries after checking that the
// series is non-empty and strictly increasing in timestamp, that every OHLCV
// value is finite and non-negative, and that every close is positive.
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	if len(bars) == 0 {
		return PriceSeries{}, fmt.Errorf("%w: price series for %q is empty", ErrInsufficientData, symbol)
	}

	owned := make([]Bar, len(bars))
	copy(owned, bars)

	for i, b := range owned {
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if !(v >= 0) || math.IsInf(v, 0) {
				return PriceSeries{}, fmt.Errorf("%w: bar %d (%s) has negative or non-finite values", ErrInvalidData, i, b.Timestamp.Format(time.RFC3339))
			}
		}
		if !(b.Close > 0) {
			return PriceSeries{}, fmt.Errorf("%w: bar %d (%s) has non-positive close %v", ErrInvalidData, i, b.Timestamp.Format(time.RFC3339), b.Close)
		}
		if i > 0 && !b.Timestamp.After(owned[i-1].Timestamp) {
			return PriceSeries{}, fmt.Errorf("%w: bar %d timestamp %s is not after %s", ErrInvalidData, i,
				b.Timestamp.Format(time.RFC3339), owned[i-1].Timestamp.Format(time.RFC3339))
		}
		if owned[i].Symbol == "" {
			owned[i].Symbol = symbol
		}
	}

	return PriceSeries{symbol: symbol, bars: owned}, nil
}

// Symbol returns the instrument the series belongs to.
func (s PriceSeries) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.bars) }

// At returns the i-th bar.
func (s PriceSeries) At(i int) Bar { return s.bars[i] }

// First returns the oldest bar. It panics on an empty series.
func (s PriceSeries) First() Bar { return s.bars[0] }

// Last returns the newest bar. It panics on an empty series.
func (s PriceSeries) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars.
func (s PriceSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Closes returns the closing prices in bar order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Tail returns a series with the newest n bars. n larger than the series
// returns the whole series.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n >= len(s.bars) {
		return s
	}
	if n <= 0 {
		return PriceSeries{symbol: s.symbol}
	}
	return PriceSeries{symbol: s.symbol, bars: s.bars[len(s.bars)-n:]}
}

// Between returns the bars with timestamps in [start, end]. A zero start or
// end leaves that side unbounded.
func (s PriceSeries) Between(start, end time.Time) PriceSeries {
	lo, hi := 0, len(s.bars)
	for lo < hi && !start.IsZero() && s.bars[lo].Timestamp.Before(start) {
		lo++
	}
	for hi > lo && !end.IsZero() && s.bars[hi-1].Timestamp.After(end) {
		hi--
	}
	return PriceSeries{symbol: s.symbol, bars: s.bars[lo:hi]}
}
