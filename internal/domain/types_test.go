package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify Order can be instantiated with zero values.
	order := Order{}
	if order.ID != "" || order.Side != "" || order.Type != "" || order.Status != "" {
		t.Error("expected empty identifiers for zero-value Order")
	}
	if order.Qty != 0 || order.FilledQty != 0 || order.FilledAvgPrice != 0 {
		t.Error("expected zero Qty/FilledQty/FilledAvgPrice for zero-value Order")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if MarketUS != "us" {
		t.Errorf("MarketUS = %q, want %q", MarketUS, "us")
	}
	if SignalLong.String() != "LONG" || SignalFlat.String() != "FLAT" {
		t.Errorf("Signal strings = %q/%q, want LONG/FLAT", SignalLong, SignalFlat)
	}

	pos := Position{Symbol: "AAPL", Qty: 100, Side: PositionSideLong}
	if pos.Side != PositionSideLong {
		t.Errorf("pos.Side = %q, want %q", pos.Side, PositionSideLong)
	}
}

func dailyBars(closes ...float64) []Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestNewPriceSeries(t *testing.T) {
	bars := dailyBars(10, 11, 12)
	s, err := NewPriceSeries("AAPL", bars)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.At(0).Symbol != "AAPL" {
		t.Errorf("At(0).Symbol = %q, want AAPL", s.At(0).Symbol)
	}

	// The series owns its bars.
	bars[0].Close = 999
	if s.At(0).Close != 10 {
		t.Errorf("series was mutated through input slice: close = %v", s.At(0).Close)
	}
	closes := s.Closes()
	closes[1] = 0
	if s.At(1).Close != 11 {
		t.Errorf("series was mutated through Closes(): close = %v", s.At(1).Close)
	}
}

func TestNewPriceSeriesErrors(t *testing.T) {
	if _, err := NewPriceSeries("X", nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty series error = %v, want ErrInsufficientData", err)
	}

	bad := dailyBars(10, 0, 12)
	if _, err := NewPriceSeries("X", bad); !errors.Is(err, ErrInvalidData) {
		t.Errorf("zero close error = %v, want ErrInvalidData", err)
	}

	dup := dailyBars(10, 11)
	dup[1].Timestamp = dup[0].Timestamp
	if _, err := NewPriceSeries("X", dup); !errors.Is(err, ErrInvalidData) {
		t.Errorf("duplicate timestamp error = %v, want ErrInvalidData", err)
	}

	neg := dailyBars(10, 11)
	neg[1].Volume = -1
	if _, err := NewPriceSeries("X", neg); !errors.Is(err, ErrInvalidData) {
		t.Errorf("negative volume error = %v, want ErrInvalidData", err)
	}

	nonFinite := []struct {
		name string
		edit func(*Bar)
	}{
		{"close NaN", func(b *Bar) { b.Close = math.NaN() }},
		{"close +Inf", func(b *Bar) { b.Close = math.Inf(1) }},
		{"open NaN", func(b *Bar) { b.Open = math.NaN() }},
		{"high +Inf", func(b *Bar) { b.High = math.Inf(1) }},
		{"low NaN", func(b *Bar) { b.Low = math.NaN() }},
		{"volume NaN", func(b *Bar) { b.Volume = math.NaN() }},
	}
	for _, tc := range nonFinite {
		bars := dailyBars(10)
		tc.edit(&bars[0])
		if _, err := NewPriceSeries("X", bars); !errors.Is(err, ErrInvalidData) {
			t.Errorf("%s error = %v, want ErrInvalidData", tc.name, err)
		}
	}
}

func TestPriceSeriesTailAndBetween(t *testing.T) {
	s, err := NewPriceSeries("X", dailyBars(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}

	tail := s.Tail(2)
	if tail.Len() != 2 || tail.First().Close != 4 || tail.Last().Close != 5 {
		t.Errorf("Tail(2) = %v, want closes [4 5]", tail.Closes())
	}
	if s.Tail(10).Len() != 5 {
		t.Errorf("Tail(10).Len() = %d, want 5", s.Tail(10).Len())
	}

	mid := s.Between(s.At(1).Timestamp, s.At(3).Timestamp)
	if mid.Len() != 3 || mid.First().Close != 2 || mid.Last().Close != 4 {
		t.Errorf("Between = %v, want closes [2 3 4]", mid.Closes())
	}
	if all := s.Between(time.Time{}, time.Time{}); all.Len() != 5 {
		t.Errorf("unbounded Between().Len() = %d, want 5", all.Len())
	}
}

func TestSignalSeriesTransitions(t *testing.T) {
	sig := SignalSeries{SignalFlat, SignalLong, SignalLong, SignalFlat, SignalLong}
	got := sig.Transitions()
	want := []int{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Transitions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transitions()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if sig.Last() != SignalLong {
		t.Errorf("Last() = %v, want LONG", sig.Last())
	}
	if (SignalSeries{}).Last() != SignalFlat {
		t.Error("Last() of empty series should be FLAT")
	}
}

func TestTradeUnrealizedPnL(t *testing.T) {
	open := Trade{EntryPrice: 100, Qty: 10}
	if !open.IsOpen() {
		t.Fatal("trade without exit time should be open")
	}
	if got := open.UnrealizedPnL(110); got != 100 {
		t.Errorf("UnrealizedPnL(110) = %v, want 100", got)
	}

	closed := Trade{EntryPrice: 100, ExitPrice: 90, Qty: 10, PnL: -100, ExitTime: time.Now()}
	if got := closed.UnrealizedPnL(200); got != -100 {
		t.Errorf("closed UnrealizedPnL = %v, want realized -100", got)
	}
}

func TestOpenTradeJSON(t *testing.T) {
	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Trade{Symbol: "SPY", EntryTime: entry, EntryPrice: 100, Qty: 10})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"exit_time":"0001-01-01T00:00:00Z"`) {
		t.Errorf("open trade JSON = %s, want zero exit_time", data)
	}

	var back Trade
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.IsOpen() || !back.EntryTime.Equal(entry) {
		t.Errorf("decoded trade = %+v, want open trade entered %v", back, entry)
	}
}

func TestIsCoreError(t *testing.T) {
	if !IsCoreError(errors.Join(errors.New("ctx"), ErrConfiguration)) {
		t.Error("IsCoreError should match wrapped ErrConfiguration")
	}
	if IsCoreError(errors.New("network down")) {
		t.Error("IsCoreError should not match arbitrary errors")
	}
}
