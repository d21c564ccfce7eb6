package strategy

import (
	"errors"
	"testing"
	"time"

	"traderbot/internal/domain"
)

// stubStrategy is a minimal Strategy that replays a fixed signal.
type stubStrategy struct {
	name   string
	signal domain.SignalSeries
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Warmup() int  { return 1 }
func (s *stubStrategy) GenerateSignal(series domain.PriceSeries) (domain.SignalSeries, error) {
	if s.signal != nil {
		return s.signal, nil
	}
	out := make(domain.SignalSeries, series.Len())
	for i := range out {
		out[i] = domain.SignalLong
	}
	return out, nil
}

// makeSeries builds a daily series with the given closes.
func makeSeries(t *testing.T, closes ...float64) domain.PriceSeries {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	s, err := domain.NewPriceSeries("TEST", bars)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return s
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.Lookup("nonexistent"); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Lookup error = %v, want ErrConfiguration", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha"})
	r.Register(&stubStrategy{name: "beta"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}
