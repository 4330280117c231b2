package engine

import (
	"context"
	"fmt"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/provider"
	"github.com/memengine/memengine/internal/store"
)

// StoreChatOptions is storeChat's request shape (§4 external interface).
type StoreChatOptions struct {
	ID        string
	Namespace string
	ChatID    string
	UserInput string
	AIOutput  string

	// ExtractRelationships requests a best-effort relationship-extraction
	// pass against recent records in the same namespace after the record is
	// persisted; a failure here never fails the store.
	ExtractRelationships bool
}

// StoreChat runs a conversational turn through the full pipeline: call the
// model provider for extraction, parse its content (or fall back
// deterministically per §6 on any failure), persist the resulting record,
// and optionally extract relationships against recent history.
func (e *Engine) StoreChat(ctx context.Context, opts StoreChatOptions) (string, error) {
	const op = "engine.StoreChat"

	var extraction provider.ExtractionResult
	if e.provider != nil {
		resp, err := e.provider.ChatCompletion(ctx, provider.Request{
			Messages: []provider.Message{
				{Role: "user", Content: opts.UserInput},
				{Role: "assistant", Content: opts.AIOutput},
			},
		})
		if err != nil {
			log.Warn("provider chatCompletion failed, using deterministic fallback", "error", err)
			extraction = provider.Fallback(opts.UserInput, opts.AIOutput)
		} else {
			extraction = provider.Parse(opts.UserInput, opts.AIOutput, resp.Content)
		}
	} else {
		extraction = provider.Fallback(opts.UserInput, opts.AIOutput)
	}

	id, err := e.mem.Store(ctx, memory.StoreOptions{
		ID: opts.ID, Namespace: opts.Namespace, ChatID: opts.ChatID,
		Content: extraction.Content, Summary: extraction.Summary,
		Classification: extraction.Classification, Importance: extraction.Importance,
		Topic: extraction.Topic, Entities: extraction.Entities, Keywords: extraction.Keywords,
		ConfidenceScore: extraction.ConfidenceScore, ClassificationReason: extraction.ClassificationReason,
	})
	if err != nil {
		return "", err
	}

	if opts.ExtractRelationships {
		e.extractRelationships(ctx, id, opts.Namespace)
	}

	return id, nil
}

// extractRelationships runs the Relationship Engine's deterministic
// extraction against id, guarded by a per-record flag so an already-active
// extraction on the same record can never re-enter (§9 recursion hazard).
// A failure or a guard rejection is logged, not surfaced: extraction is a
// best-effort enrichment of a store that already succeeded.
func (e *Engine) extractRelationships(ctx context.Context, id, namespace string) {
	if !e.beginExtraction(id) {
		log.Warn("relationship extraction already active for record, skipping", "memory_id", id)
		return
	}
	defer e.endExtraction(id)

	rec, err := e.mem.Get(ctx, id, namespace)
	if err != nil || rec == nil {
		if err != nil {
			log.LogError("extractRelationships.get", err, "memory_id", id)
		}
		return
	}

	rels, err := e.rel.Extract(ctx, store.TableLongTerm, rec)
	if err != nil {
		log.LogError("extractRelationships.extract", err, "memory_id", id)
		return
	}
	if len(rels) == 0 {
		return
	}

	if _, err := e.rel.Store(ctx, store.TableLongTerm, id, namespace, rels); err != nil {
		log.LogError("extractRelationships.store", err, "memory_id", id)
	}
}

func (e *Engine) beginExtraction(id string) bool {
	e.extractMu.Lock()
	defer e.extractMu.Unlock()
	if e.extractActive[id] {
		return false
	}
	e.extractActive[id] = true
	return true
}

func (e *Engine) endExtraction(id string) {
	e.extractMu.Lock()
	defer e.extractMu.Unlock()
	delete(e.extractActive, id)
}

// StoreMemory persists a record directly, bypassing the model provider —
// for callers that already hold a distilled record (e.g. a migration or the
// consolidation scheduler replaying a candidate).
func (e *Engine) StoreMemory(ctx context.Context, opts memory.StoreOptions) (string, error) {
	return e.mem.Store(ctx, opts)
}

// GetMemory retrieves a record by id, namespace-scoped.
func (e *Engine) GetMemory(ctx context.Context, id, namespace string) (*store.MemoryRecord, error) {
	return e.mem.Get(ctx, id, namespace)
}

// errNotFound is a convenience constructor used by the query-surface verbs.
func errNotFound(op, id string) error {
	return engineerr.New(op, engineerr.NotFound, fmt.Sprintf("memory not found: %s", id))
}
