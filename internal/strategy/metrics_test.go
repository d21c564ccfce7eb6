package strategy

import (
	"math"
	"testing"
	"time"

	"traderbot/internal/domain"
)

func curveOf(values ...float64) domain.EquityCurve {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	c := make(domain.EquityCurve, len(values))
	for i, v := range values {
		c[i] = domain.EquityPoint{Timestamp: start.AddDate(0, 0, i), Cash: v, Equity: v}
	}
	return c
}

func closedTrade(pnl float64) domain.Trade {
	return domain.Trade{PnL: pnl, ExitTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"rising", []float64{1, 2, 3}, 0},
		{"single dip", []float64{100, 80, 120}, -0.2},
		{"deeper later", []float64{100, 90, 150, 75, 160}, -0.5},
		{"wiped out", []float64{100, 0}, -1},
	}
	for _, tc := range cases {
		got := MaxDrawdown(tc.values)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: MaxDrawdown = %v, want %v", tc.name, got, tc.want)
		}
		if got > 0 || got < -1 {
			t.Errorf("%s: MaxDrawdown = %v outside [-1, 0]", tc.name, got)
		}
	}
}

func TestSummarize(t *testing.T) {
	curve := curveOf(1000, 1100, 990, 1210)
	trades := []domain.Trade{closedTrade(150), closedTrade(-50), closedTrade(100), {PnL: 0}}

	r := Summarize(curve, trades)
	if r.Bars != 4 {
		t.Errorf("Bars = %d, want 4", r.Bars)
	}
	if math.Abs(r.TotalReturn-0.21) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.21", r.TotalReturn)
	}
	if math.Abs(r.MaxDrawdown-(-0.1)) > 1e-12 {
		t.Errorf("MaxDrawdown = %v, want -0.1", r.MaxDrawdown)
	}
	if r.TotalTrades != 4 || r.ClosedTrades != 3 {
		t.Errorf("TotalTrades/ClosedTrades = %d/%d, want 4/3", r.TotalTrades, r.ClosedTrades)
	}
	if math.Abs(r.WinRate-2.0/3.0) > 1e-12 {
		t.Errorf("WinRate = %v, want 2/3", r.WinRate)
	}
	if math.Abs(r.ProfitFactor-5) > 1e-12 {
		t.Errorf("ProfitFactor = %v, want 5", r.ProfitFactor)
	}
	if r.FinalEquity != 1210 || r.InitialEquity != 1000 {
		t.Errorf("Initial/Final = %v/%v, want 1000/1210", r.InitialEquity, r.FinalEquity)
	}
	if r.Volatility <= 0 || r.SharpeRatio <= 0 {
		t.Errorf("Volatility/Sharpe = %v/%v, want both positive", r.Volatility, r.SharpeRatio)
	}

	// Returns are 0.1, -0.1, 0.2222...; check against a direct computation.
	rets := []float64{0.1, -0.1, 1210.0/990.0 - 1}
	mean := (rets[0] + rets[1] + rets[2]) / 3
	var ss float64
	for _, x := range rets {
		ss += (x - mean) * (x - mean)
	}
	std := math.Sqrt(ss / 2)
	if want := std * math.Sqrt(252); math.Abs(r.Volatility-want) > 1e-9 {
		t.Errorf("Volatility = %v, want %v", r.Volatility, want)
	}
	if want := mean / std * math.Sqrt(252); math.Abs(r.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", r.SharpeRatio, want)
	}
}

func TestSummarizeNoClosedTrades(t *testing.T) {
	r := Summarize(curveOf(500, 500, 500), []domain.Trade{{PnL: 0}})
	if r.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0", r.WinRate)
	}
	if r.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", r.ProfitFactor)
	}
	if r.TotalReturn != 0 || r.SharpeRatio != 0 || r.Volatility != 0 {
		t.Errorf("flat curve report = %+v, want zero return/vol/sharpe", r)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil, nil)
	if r != (domain.PerformanceReport{}) {
		t.Errorf("Summarize(nil, nil) = %+v, want zero report", r)
	}
}

func TestSummarizeAnnualizedReturn(t *testing.T) {
	// Doubling over 126 bars annualizes to 4x at 252 periods.
	values := make([]float64, 126)
	for i := range values {
		values[i] = 100
	}
	values[len(values)-1] = 200
	r := SummarizeWithPeriods(curveOf(values...), nil, 252)
	if math.Abs(r.AnnualizedReturn-3) > 1e-9 {
		t.Errorf("AnnualizedReturn = %v, want 3", r.AnnualizedReturn)
	}
}

func TestSummarizeIsPure(t *testing.T) {
	curve := curveOf(10, 12, 9, 15)
	trades := []domain.Trade{closedTrade(2), closedTrade(-1)}
	a := Summarize(curve, trades)
	b := Summarize(curve, trades)
	if a != b {
		t.Errorf("Summarize not deterministic: %+v vs %+v", a, b)
	}
	if curve[2].Equity != 9 || trades[1].PnL != -1 {
		t.Error("Summarize mutated its inputs")
	}
}
