package engine

import (
	"context"

	"github.com/memengine/memengine/internal/consolidation"
	"github.com/memengine/memengine/internal/ftsindex"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

// Stats is stats()'s aggregate report: store metrics, state-manager
// counters, consolidation analytics, and FTS health in one call, per the
// facade's §4.8 stats verb.
type Stats struct {
	Store         store.Stats
	StateManager  statemachine.Metrics
	Consolidation *consolidation.Stats
	SearchIndex   *ftsindex.HealthReport
}

// Stats aggregates every component's health/metrics surface for namespace.
func (e *Engine) Stats(ctx context.Context, namespace string) (*Stats, error) {
	consAnalytics, err := e.cons.Analytics(ctx, store.TableLongTerm, namespace)
	if err != nil {
		return nil, err
	}
	health, err := e.fts.HealthReport(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Store:         e.st.GetStats(),
		StateManager:  e.sm.MetricsSnapshot(),
		Consolidation: consAnalytics,
		SearchIndex:   health,
	}, nil
}
