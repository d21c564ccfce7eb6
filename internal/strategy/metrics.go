package strategy

import (
	"math"

	"traderbot/internal/domain"
)

// TradingDaysPerYear is the default annualization factor for daily bars.
const TradingDaysPerYear = 252

// Summarize computes a PerformanceReport assuming daily bars.
func Summarize(curve domain.EquityCurve, trades []domain.Trade) domain.PerformanceReport {
	return SummarizeWithPeriods(curve, trades, TradingDaysPerYear)
}

// SummarizeWithPeriods computes a PerformanceReport, annualizing with the
// given number of bars per year. A non-positive periodsPerYear falls back to
// TradingDaysPerYear. An empty curve yields a zero report.
func SummarizeWithPeriods(curve domain.EquityCurve, trades []domain.Trade, periodsPerYear int) domain.PerformanceReport {
	if periodsPerYear <= 0 {
		periodsPerYear = TradingDaysPerYear
	}

	var r domain.PerformanceReport
	r.TotalTrades = len(trades)
	r.ClosedTrades, r.WinRate, r.ProfitFactor = tradeStats(trades)
	if len(curve) == 0 {
		return r
	}

	r.Bars = len(curve)
	r.InitialEquity = curve.Initial()
	r.FinalEquity = curve.Final()
	if r.InitialEquity > 0 {
		growth := r.FinalEquity / r.InitialEquity
		r.TotalReturn = growth - 1
		if growth > 0 {
			r.AnnualizedReturn = math.Pow(growth, float64(periodsPerYear)/float64(len(curve))) - 1
			// Short, steep curves overflow; keep the report JSON-encodable.
			if math.IsInf(r.AnnualizedReturn, 1) {
				r.AnnualizedReturn = math.MaxFloat64
			}
		} else {
			r.AnnualizedReturn = -1
		}
	}
	r.MaxDrawdown = MaxDrawdown(curve.Values())

	returns := periodReturns(curve.Values())
	mean, std := meanStd(returns)
	scale := math.Sqrt(float64(periodsPerYear))
	r.Volatility = std * scale
	if std > 0 {
		r.SharpeRatio = mean / std * scale
	}
	return r
}

// MaxDrawdown returns the largest peak-to-trough decline of equity as a
// fraction in [-1, 0].
func MaxDrawdown(equity []float64) float64 {
	var (
		peak  float64
		worst float64
	)
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return math.Max(worst, -1)
}

// tradeStats returns the number of closed trades, the fraction of them with
// positive P&L, and gross profit over gross loss (0 without losing trades).
func tradeStats(trades []domain.Trade) (closed int, winRate, profitFactor float64) {
	var wins int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		closed++
		switch {
		case t.PnL > 0:
			wins++
			grossProfit += t.PnL
		case t.PnL < 0:
			grossLoss -= t.PnL
		}
	}
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
	}
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}
	return closed, winRate, profitFactor
}

func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// meanStd returns the mean and sample standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
