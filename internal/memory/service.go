package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

var log = logging.GetLogger("memory")

// Service is the Memory Manager: validates and persists memory records,
// drives their lifecycle state, and serves namespace-scoped reads.
type Service struct {
	st               *store.Store
	sm               *statemachine.Manager
	maxContentLength int
}

// New constructs a Memory Manager over st, tracking lifecycle state through sm.
func New(st *store.Store, sm *statemachine.Manager, maxContentLength int) *Service {
	if maxContentLength <= 0 {
		maxContentLength = 50000
	}
	return &Service{st: st, sm: sm, maxContentLength: maxContentLength}
}

// StoreOptions describes a record to persist.
type StoreOptions struct {
	ID                   string
	Namespace            string
	ChatID               string
	Content              string
	Summary              string
	Classification       string
	Importance           string
	Topic                string
	Entities             []string
	Keywords             []string
	ConfidenceScore      float64
	ClassificationReason string
	Relationships        []store.Relationship
	Supersedes           []store.Relationship
	ConsciousProcessed   bool
}

// Store validates and persists a new record, then drives it through
// PENDING -> PROCESSING -> PROCESSED.
func (s *Service) Store(ctx context.Context, opts StoreOptions) (string, error) {
	const op = "memory.Store"

	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return "", engineerr.New(op, engineerr.Validation, "content must not be empty")
	}
	if len(content) > s.maxContentLength {
		return "", engineerr.New(op, engineerr.Validation,
			fmt.Sprintf("content length %d exceeds maxContentLength %d", len(content), s.maxContentLength))
	}
	if !store.IsValidClassification(opts.Classification) {
		return "", engineerr.New(op, engineerr.Validation, fmt.Sprintf("invalid classification %q", opts.Classification))
	}
	if !store.IsValidImportance(opts.Importance) {
		return "", engineerr.New(op, engineerr.Validation, fmt.Sprintf("invalid importance %q", opts.Importance))
	}
	if opts.ConfidenceScore < 0 || opts.ConfidenceScore > 1 {
		return "", engineerr.New(op, engineerr.Validation, "confidenceScore must be in [0,1]")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	rec := &store.MemoryRecord{
		ID: id, Namespace: opts.Namespace, ChatID: opts.ChatID,
		Content: content, Summary: truncateSummary(opts.Summary, content),
		Classification: opts.Classification, Importance: opts.Importance,
		ImportanceScore: store.ImportanceScores[opts.Importance],
		Topic:           opts.Topic, Entities: normalizeTags(opts.Entities), Keywords: normalizeTags(opts.Keywords),
		ConfidenceScore: opts.ConfidenceScore, ClassificationReason: opts.ClassificationReason,
		Relationships: opts.Relationships, Supersedes: opts.Supersedes,
		ConsciousProcessed: opts.ConsciousProcessed,
		CreatedAt:          now, UpdatedAt: now, ExtractionTimestamp: now,
	}

	if err := s.st.InsertMemory(ctx, store.TableLongTerm, rec); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}

	if s.sm != nil {
		s.sm.Initialize(id, statemachine.Pending)
		if err := s.sm.Transition(ctx, id, statemachine.Processing, statemachine.TransitionOptions{Reason: "ingest"}); err != nil {
			log.Warn("state transition failed after successful store", "memory_id", id, "error", err)
		} else if err := s.sm.Transition(ctx, id, statemachine.Processed, statemachine.TransitionOptions{Reason: "distilled"}); err != nil {
			log.Warn("state transition failed after successful store", "memory_id", id, "error", err)
		}
	}

	log.LogOperation("store", "memory_id", id, "namespace", opts.Namespace)
	return id, nil
}

func truncateSummary(summary, content string) string {
	if summary != "" {
		if len(summary) > 200 {
			return summary[:200]
		}
		return summary
	}
	if len(content) > 100 {
		return content[:100] + "..."
	}
	return content
}

// normalizeTags normalizes tag names (lowercase, trim whitespace, deduplicate).
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	var result []string
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized != "" && !seen[normalized] {
			seen[normalized] = true
			result = append(result, normalized)
		}
	}
	return result
}

// Get retrieves a record by id, namespace-scoped. Returns (nil, nil) when absent.
func (s *Service) Get(ctx context.Context, id, namespace string) (*store.MemoryRecord, error) {
	if namespace == "" {
		namespace = "default"
	}
	return s.st.GetMemory(ctx, store.TableLongTerm, id, namespace)
}

// ListOptions configures ListByNamespace/ListByImportance.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string
}

// ListByNamespace lists records, ordered by created_at DESC unless OrderBy overrides it.
func (s *Service) ListByNamespace(ctx context.Context, namespace string, opts ListOptions) ([]*store.MemoryRecord, error) {
	return s.st.ListMemories(ctx, store.TableLongTerm, store.ListFilters{
		Namespace: namespace, Limit: opts.Limit, Offset: opts.Offset, OrderBy: opts.OrderBy,
	})
}

// ListByImportance returns records whose importance is >= minImportance
// (CRITICAL > HIGH > MEDIUM > LOW).
func (s *Service) ListByImportance(ctx context.Context, minImportance, namespace string, opts ListOptions) ([]*store.MemoryRecord, error) {
	return s.st.ListMemories(ctx, store.TableLongTerm, store.ListFilters{
		Namespace: namespace, MinImportance: minImportance, Limit: opts.Limit, Offset: opts.Offset, OrderBy: opts.OrderBy,
	})
}

// UpdatePatch describes a partial update to a record. Nil fields are left unchanged.
type UpdatePatch struct {
	Content              *string
	Summary              *string
	Classification       *string
	Importance           *string
	Topic                *string
	Entities             []string
	Keywords             []string
	ConfidenceScore      *float64
	ClassificationReason *string
}

func (p UpdatePatch) isEmpty() bool {
	return p.Content == nil && p.Summary == nil && p.Classification == nil && p.Importance == nil &&
		p.Topic == nil && p.Entities == nil && p.Keywords == nil && p.ConfidenceScore == nil && p.ClassificationReason == nil
}

// Update applies patch to a record. An empty patch returns false without
// writing. On success it records a state transition for the edit.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch, namespace string) (bool, error) {
	const op = "memory.Update"
	if patch.isEmpty() {
		return false, nil
	}
	if namespace == "" {
		namespace = "default"
	}

	rec, err := s.st.GetMemory(ctx, store.TableLongTerm, id, namespace)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	if patch.Content != nil {
		content := strings.TrimSpace(*patch.Content)
		if content == "" {
			return false, engineerr.New(op, engineerr.Validation, "content must not be empty")
		}
		if len(content) > s.maxContentLength {
			return false, engineerr.New(op, engineerr.Validation, "content exceeds maxContentLength")
		}
		rec.Content = content
	}
	if patch.Summary != nil {
		rec.Summary = *patch.Summary
	}
	if patch.Classification != nil {
		if !store.IsValidClassification(*patch.Classification) {
			return false, engineerr.New(op, engineerr.Validation, "invalid classification")
		}
		rec.Classification = *patch.Classification
	}
	if patch.Importance != nil {
		if !store.IsValidImportance(*patch.Importance) {
			return false, engineerr.New(op, engineerr.Validation, "invalid importance")
		}
		rec.Importance = *patch.Importance
		rec.ImportanceScore = store.ImportanceScores[*patch.Importance]
	}
	if patch.Topic != nil {
		rec.Topic = *patch.Topic
	}
	if patch.Entities != nil {
		rec.Entities = normalizeTags(patch.Entities)
	}
	if patch.Keywords != nil {
		rec.Keywords = normalizeTags(patch.Keywords)
	}
	if patch.ConfidenceScore != nil {
		if *patch.ConfidenceScore < 0 || *patch.ConfidenceScore > 1 {
			return false, engineerr.New(op, engineerr.Validation, "confidenceScore must be in [0,1]")
		}
		rec.ConfidenceScore = *patch.ConfidenceScore
	}
	if patch.ClassificationReason != nil {
		rec.ClassificationReason = *patch.ClassificationReason
	}
	rec.UpdatedAt = time.Now().UTC()

	ok, err := s.st.UpdateMemory(ctx, store.TableLongTerm, rec)
	if err != nil || !ok {
		return ok, err
	}

	if s.sm != nil {
		current := s.sm.Current(id)
		if current == "" {
			current = statemachine.Processed
		}
		if err := s.sm.Transition(ctx, id, current, statemachine.TransitionOptions{Reason: "update"}); err != nil {
			log.Warn("state transition failed after successful update", "memory_id", id, "error", err)
		}
	}
	return true, nil
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	Cascade bool
}

// Delete removes a record. Returns false for missing records. With Cascade,
// also removes relationships targeting the record across the namespace.
func (s *Service) Delete(ctx context.Context, id, namespace string, opts DeleteOptions) (bool, error) {
	if namespace == "" {
		namespace = "default"
	}
	ok, err := s.st.DeleteMemory(ctx, store.TableLongTerm, id, namespace)
	if err != nil || !ok {
		return ok, err
	}

	if opts.Cascade {
		if err := s.st.DeleteRelationshipsTargeting(ctx, store.TableLongTerm, namespace, id); err != nil {
			log.Warn("cascade relationship cleanup failed", "memory_id", id, "error", err)
		}
	}

	if s.sm != nil {
		s.sm.Clear(id)
	}
	return true, nil
}

// Stats summarizes the corpus for a namespace.
type Stats struct {
	TotalMemories int
	Namespace     string
}

// GetStats returns a lightweight count for namespace (use engine.Stats for
// the full cross-component report).
func (s *Service) GetStats(ctx context.Context, namespace string) (*Stats, error) {
	recs, err := s.st.ListMemories(ctx, store.TableLongTerm, store.ListFilters{Namespace: namespace, Limit: 1000})
	if err != nil {
		return nil, err
	}
	return &Stats{TotalMemories: len(recs), Namespace: namespace}, nil
}
