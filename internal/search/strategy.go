package search

import (
	"context"
	"time"
)

// Result is one search hit, common across every strategy (§4.6).
type Result struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
	Strategy string
	Timestamp time.Time
}

// Query is the common request shape strategies dispatch on. Not every field
// applies to every strategy; a strategy ignores what it doesn't use.
type Query struct {
	Text          string
	Namespace     string
	MinImportance string
	Limit         int
	Offset        int

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Since         string // relative expression, e.g. "2 days ago"
	YoungerThan   string
	OlderThan     string

	Timeout time.Duration
}

// Strategy is the common dispatch contract every search strategy satisfies.
type Strategy interface {
	Name() string
	CanHandle(q Query) bool
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Dispatcher holds the registered strategies and routes a query to the
// first one that claims it, in registration order.
type Dispatcher struct {
	strategies []Strategy
}

// NewDispatcher builds a Dispatcher over strategies, tried in order.
func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// Search finds the first strategy that can handle q and runs it. Returns an
// empty result set if none claim the query.
func (d *Dispatcher) Search(ctx context.Context, q Query) ([]Result, error) {
	for _, s := range d.strategies {
		if s.CanHandle(q) {
			return s.Search(ctx, q)
		}
	}
	return nil, nil
}

// clamp01 bounds a score into [0,1], the contract every strategy's Result
// must satisfy.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
