package engine

import (
	"context"

	"github.com/memengine/memengine/internal/consolidation"
	"github.com/memengine/memengine/internal/store"
)

// PreviewConsolidation estimates a consolidation's outcome without mutating
// any record.
func (e *Engine) PreviewConsolidation(ctx context.Context, namespace, primaryID string, dupIDs []string) (*consolidation.PreviewResult, error) {
	return e.cons.PreviewConsolidation(ctx, store.TableLongTerm, namespace, primaryID, dupIDs)
}

// RollbackConsolidation restores primaryID and its consolidated duplicates
// to their pre-consolidation state using token.
func (e *Engine) RollbackConsolidation(ctx context.Context, namespace, primaryID, token string) (*consolidation.RollbackResult, error) {
	return e.cons.Rollback(ctx, store.TableLongTerm, namespace, primaryID, token)
}

// CleanupConsolidated hard-deletes duplicate records consolidated more than
// days ago; dryRun only counts what would be removed.
func (e *Engine) CleanupConsolidated(ctx context.Context, namespace string, days int, dryRun bool) (*consolidation.CleanupResult, error) {
	return e.cons.CleanupOld(ctx, store.TableLongTerm, namespace, days, dryRun)
}

// ConsolidationAnalytics reports the namespace's consolidation health.
func (e *Engine) ConsolidationAnalytics(ctx context.Context, namespace string) (*consolidation.Stats, error) {
	return e.cons.Analytics(ctx, store.TableLongTerm, namespace)
}
