// Package gather moves market data from remote sources into local stores.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the gathering work. It returns early when ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that the range is bounded and ordered.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range needs both a start and an end")
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("date range start %s is not before end %s",
			r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}
	return nil
}

// SplitYears cuts the range at calendar year boundaries (UTC) so each piece
// fits one request and one storage file.
func (r DateRange) SplitYears() []DateRange {
	var out []DateRange
	start := r.Start.UTC()
	end := r.End.UTC()
	for start.Before(end) {
		next := time.Date(start.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
		if next.After(end) {
			next = end
		}
		out = append(out, DateRange{Start: start, End: next})
		start = next
	}
	return out
}
