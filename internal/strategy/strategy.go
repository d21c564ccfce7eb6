// Package strategy defines the Strategy interface for trading strategies,
// the bar-by-bar backtest simulator, performance statistics and a Registry
// for looking strategies up by name.
package strategy

import (
	"fmt"
	"sort"

	"traderbot/internal/domain"
)

// Strategy maps a price series to a position signal. Implementations must be
// pure: the same series must always produce the same signal, and signal[i]
// may only depend on bars [0..i].
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Warmup returns the minimum number of bars GenerateSignal needs.
	Warmup() int

	// GenerateSignal returns one signal per bar of series.
	GenerateSignal(series domain.PriceSeries) (domain.SignalSeries, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Lookup is Get returning an ErrConfiguration-wrapped error for unknown names.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (available: %v)", domain.ErrConfiguration, name, r.List())
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
