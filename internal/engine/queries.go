package engine

import (
	"context"

	"github.com/memengine/memengine/internal/consolidation"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/relationships"
	"github.com/memengine/memengine/internal/search"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

// SearchMemories dispatches q to the first search strategy that claims it
// (FTS for non-empty text, Recency otherwise), per §4.6.
func (e *Engine) SearchMemories(ctx context.Context, q search.Query) ([]search.Result, error) {
	return e.dispatcher.Search(ctx, q)
}

// ByRelationship projects relationship entries matching opts across the
// namespace (or a single source record when opts.SourceMemoryID is set).
func (e *Engine) ByRelationship(ctx context.Context, opts relationships.QueryOptions) ([]relationships.QueryMatch, error) {
	return e.rel.ByQuery(ctx, store.TableLongTerm, opts)
}

// RelatedTo performs a bounded BFS from id across its relationship graph.
func (e *Engine) RelatedTo(ctx context.Context, id, namespace string, maxDepth int) (*relationships.NetworkResult, error) {
	return e.rel.Network(ctx, store.TableLongTerm, id, namespace, maxDepth)
}

// StoreRelationships validates and merges rels onto memoryID's record.
func (e *Engine) StoreRelationships(ctx context.Context, memoryID, namespace string, rels []store.Relationship) (relationships.StoreResult, error) {
	return e.rel.Store(ctx, store.TableLongTerm, memoryID, namespace, rels)
}

// ResolveConflicts detects conflicting relationships on a record's combined
// (general + supersedes) edge set and reports which entries each resolution
// keeps and drops. The stored record is not modified.
func (e *Engine) ResolveConflicts(ctx context.Context, memoryID, namespace string) ([]relationships.Conflict, error) {
	rec, err := e.mem.Get(ctx, memoryID, namespace)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errNotFound("engine.ResolveConflicts", memoryID)
	}
	all := append(append([]store.Relationship{}, rec.Relationships...), rec.Supersedes...)
	return relationships.DetectConflicts(all), nil
}

// GetMemoryState returns a record's current lifecycle state, or "" if
// untracked (e.g. it predates this process).
func (e *Engine) GetMemoryState(id string) string {
	return e.sm.Current(id)
}

// TransitionMemoryState drives id to target, validated against
// statemachine.VALID_TRANSITIONS.
func (e *Engine) TransitionMemoryState(ctx context.Context, id, target string, opts statemachine.TransitionOptions) error {
	return e.sm.Transition(ctx, id, target, opts)
}

// StartConsolidationSchedule starts the background consolidation scheduler,
// a no-op if already running.
func (e *Engine) StartConsolidationSchedule() {
	e.consSched.Start()
}

// StopConsolidationSchedule stops the background consolidation scheduler, a
// no-op if not running.
func (e *Engine) StopConsolidationSchedule() {
	e.consSched.Stop()
}

// Consolidate runs an explicit, caller-requested consolidation (as opposed
// to the scheduler's automatic one).
func (e *Engine) Consolidate(ctx context.Context, namespace, primaryID string, dupIDs []string) (*consolidation.ConsolidationResult, error) {
	return e.cons.Consolidate(ctx, store.TableLongTerm, namespace, primaryID, dupIDs)
}

// DetectDuplicates scans namespace for near-duplicates of content.
func (e *Engine) DetectDuplicates(ctx context.Context, namespace, content string, threshold float64) ([]consolidation.Candidate, error) {
	return e.cons.Detect(ctx, store.TableLongTerm, namespace, content, threshold)
}

// ListMemories lists a namespace's records, most recent first unless
// opts.OrderBy overrides it.
func (e *Engine) ListMemories(ctx context.Context, namespace string, opts memory.ListOptions) ([]*store.MemoryRecord, error) {
	return e.mem.ListByNamespace(ctx, namespace, opts)
}

// UpdateMemory applies patch to a record; an empty patch is a no-op that
// returns false without writing.
func (e *Engine) UpdateMemory(ctx context.Context, id string, patch memory.UpdatePatch, namespace string) (bool, error) {
	return e.mem.Update(ctx, id, patch, namespace)
}

// DeleteMemory removes a record, optionally cascading to relationships
// that target it elsewhere in the namespace.
func (e *Engine) DeleteMemory(ctx context.Context, id, namespace string, opts memory.DeleteOptions) (bool, error) {
	return e.mem.Delete(ctx, id, namespace, opts)
}
