package collector

import (
	"context"
	"time"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// Provider defines the interface for historical bar sources
type Provider interface {
	// Metadata
	Name() string

	// Data fetching. Bars are returned oldest first. A zero start or end
	// leaves that side of the range open.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// Sink persists a bar series
type Sink interface {
	WriteBars(ctx context.Context, symbol string, bars []core.Bar) error
}

// InRange reports whether t falls in [start, end], treating zero bounds as open.
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// FilterRange returns the bars inside [start, end].
func FilterRange(bars []core.Bar, start, end time.Time) []core.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	out := make([]core.Bar, 0, len(bars))
	for _, b := range bars {
		if InRange(b.Time, start, end) {
			out = append(out, b)
		}
	}
	return out
}
