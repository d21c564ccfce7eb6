package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// BarFetcher loads bars for one symbol over [start, end] from a remote
// source.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// BarFetcherFunc adapts a function to BarFetcher.
type BarFetcherFunc func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

// FetchBars calls f.
func (f BarFetcherFunc) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return f(ctx, symbol, start, end)
}

var _ Gatherer = (*BarGatherer)(nil)

// BarGatherer copies bars for a set of symbols from a BarFetcher into a
// BarStore, one year per request.
type BarGatherer struct {
	fetcher    BarFetcher
	store      store.BarStore
	symbols    []string
	rng        DateRange
	maxWorkers int
	// Incremental skips the part of the range already present in the
	// store.
	Incremental bool

	written atomic.Int64
	log     *slog.Logger
}

// NewBarGatherer creates a BarGatherer for symbols over rng using up to
// maxWorkers concurrent symbol fetches.
func NewBarGatherer(f BarFetcher, s store.BarStore, symbols []string, rng DateRange, maxWorkers int) *BarGatherer {
	upper := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			upper = append(upper, sym)
		}
	}
	return &BarGatherer{
		fetcher:    f,
		store:      s,
		symbols:    upper,
		rng:        rng,
		maxWorkers: max(maxWorkers, 1),
		log:        slog.Default().With("gatherer", "bars"),
	}
}

// Name returns the gatherer identifier.
func (g *BarGatherer) Name() string { return "bars" }

// Written returns the number of bars stored by the last Run.
func (g *BarGatherer) Written() int64 { return g.written.Load() }

// Run fetches and stores bars for every symbol. The first failure cancels
// the remaining work and is returned.
func (g *BarGatherer) Run(ctx context.Context) error {
	if err := g.rng.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if len(g.symbols) == 0 {
		return fmt.Errorf("%w: no symbols to gather", domain.ErrConfiguration)
	}
	g.written.Store(0)
	runStart := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxWorkers)
	for _, sym := range g.symbols {
		eg.Go(func() error {
			return g.gatherSymbol(ctx, sym)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("complete",
		"symbols", len(g.symbols),
		"bars", g.written.Load(),
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return nil
}

func (g *BarGatherer) gatherSymbol(ctx context.Context, symbol string) error {
	rng := g.rng
	if g.Incremental {
		existing, err := g.store.ReadBars(ctx, symbol, rng.Start, rng.End)
		if err != nil {
			return fmt.Errorf("reading cached %s bars: %w", symbol, err)
		}
		if n := len(existing); n > 0 {
			rng.Start = existing[n-1].Timestamp.Add(time.Second)
		}
		if !rng.Start.Before(rng.End) {
			g.log.Debug("up to date", "symbol", symbol)
			return nil
		}
	}

	var total int
	for _, chunk := range rng.SplitYears() {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars, err := g.fetcher.FetchBars(ctx, symbol, chunk.Start, chunk.End)
		if err != nil {
			return fmt.Errorf("fetching %s %s..%s: %w", symbol,
				chunk.Start.Format(time.DateOnly), chunk.End.Format(time.DateOnly), err)
		}
		if len(bars) == 0 {
			continue
		}
		for i := range bars {
			bars[i].Symbol = symbol
		}
		if err := g.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("writing %s bars: %w", symbol, err)
		}
		total += len(bars)
		g.written.Add(int64(len(bars)))
	}
	g.log.Info("symbol done", "symbol", symbol, "bars", total)
	return nil
}
