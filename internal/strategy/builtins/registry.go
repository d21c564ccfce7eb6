package builtins

import (
	"fmt"
	"strings"

	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

// Names lists the built-in strategies.
var Names = []string{"buy-and-hold", "sma-cross"}

// Build constructs the built-in strategy called name. The window sizes only
// apply to sma-cross.
func Build(name string, fast, slow int) (strategy.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sma-cross", "sma", "sma_cross":
		return NewSMACross(fast, slow)
	case "buy-and-hold", "buyhold", "buy_and_hold":
		return BuyAndHold{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q (available: %s)", domain.ErrConfiguration, name, strings.Join(Names, ", "))
	}
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry(fast, slow int) (*strategy.Registry, error) {
	r := strategy.NewRegistry()
	for _, name := range Names {
		s, err := Build(name, fast, slow)
		if err != nil {
			return nil, err
		}
		r.Register(s)
	}
	return r, nil
}
