package relationships

import (
	"context"
	"fmt"
	"sort"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/store"
)

var log = logging.GetLogger("relationships")

// Service is the Relationship Engine.
type Service struct {
	st                        *store.Store
	maxRelationshipsPerMemory int
	extractionWindow          int
}

// New constructs a Relationship Engine over st.
func New(st *store.Store, maxRelationshipsPerMemory int) *Service {
	if maxRelationshipsPerMemory <= 0 {
		maxRelationshipsPerMemory = 100
	}
	return &Service{st: st, maxRelationshipsPerMemory: maxRelationshipsPerMemory, extractionWindow: 50}
}

// StoreResult reports the outcome of Store.
type StoreResult struct {
	Stored int
	Errors []string
}

// Store validates rels against §3 and merges them onto the record at
// (table, memoryID, namespace), keyed by (type, targetMemoryId).
func (s *Service) Store(ctx context.Context, table, memoryID, namespace string, rels []store.Relationship) (StoreResult, error) {
	const op = "relationships.Store"

	rec, err := s.st.GetMemory(ctx, table, memoryID, namespace)
	if err != nil {
		return StoreResult{}, err
	}
	if rec == nil {
		return StoreResult{}, engineerr.New(op, engineerr.NotFound, "memory not found: "+memoryID)
	}

	var result StoreResult
	for _, r := range rels {
		if err := validateRelationship(r); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		target, err := s.st.GetMemory(ctx, table, r.TargetMemoryID, namespace)
		if err != nil {
			return StoreResult{}, err
		}
		if target == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("target %s not found in namespace", r.TargetMemoryID))
			continue
		}
		result.Stored++
	}
	if len(result.Errors) > 0 {
		return result, engineerr.New(op, engineerr.Validation, "one or more relationships failed validation")
	}

	general, supersedes := splitByType(rec.Relationships, rec.Supersedes, rels)
	if len(general)+len(supersedes) > s.maxRelationshipsPerMemory {
		return result, engineerr.New(op, engineerr.Validation,
			fmt.Sprintf("relationship count %d exceeds maxRelationshipsPerMemory %d", len(general)+len(supersedes), s.maxRelationshipsPerMemory))
	}

	if err := s.st.UpdateRelationships(ctx, table, memoryID, namespace, general, supersedes); err != nil {
		return result, err
	}
	log.LogOperation("store_relationships", "memory_id", memoryID, "stored", result.Stored)
	return result, nil
}

func validateRelationship(r store.Relationship) error {
	const op = "relationships.validate"
	if !store.IsValidRelationshipType(r.Type) {
		return engineerr.New(op, engineerr.Validation, "invalid relationship type: "+r.Type)
	}
	if r.TargetMemoryID == "" {
		return engineerr.New(op, engineerr.Validation, "targetMemoryId is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return engineerr.New(op, engineerr.Validation, "confidence must be in [0,1]")
	}
	if r.Strength < 0 || r.Strength > 1 {
		return engineerr.New(op, engineerr.Validation, "strength must be in [0,1]")
	}
	if len(r.Reason) > 0 && len(r.Reason) < 10 {
		return engineerr.New(op, engineerr.Validation, "reason must be at least 10 characters when present")
	}
	if len(r.Context) > 0 && len(r.Context) < 5 {
		return engineerr.New(op, engineerr.Validation, "context must be at least 5 characters when present")
	}
	if r.Strength > r.Confidence+0.3 {
		return engineerr.New(op, engineerr.Validation, "strength must be <= confidence+0.3")
	}
	return nil
}

// splitByType merges incoming relationships into the existing general and
// supersedes lists, keyed by (type, targetMemoryId). On collision, keeps the
// pointwise-greater-or-equal entry; if mixed, keeps the one with higher
// confidence (§4.4 merge rule).
func splitByType(existingGeneral, existingSupersedes []store.Relationship, incoming []store.Relationship) (general, supersedes []store.Relationship) {
	generalByKey := indexByKey(existingGeneral)
	supersedesByKey := indexByKey(existingSupersedes)

	for _, r := range incoming {
		target := generalByKey
		if r.Type == "SUPERSEDES" {
			target = supersedesByKey
		}
		if cur, ok := target[r.Key()]; ok {
			target[r.Key()] = mergeRelationship(cur, r)
		} else {
			target[r.Key()] = r
		}
	}

	return valuesSorted(generalByKey), valuesSorted(supersedesByKey)
}

func mergeRelationship(a, b store.Relationship) store.Relationship {
	if a.Confidence >= b.Confidence && a.Strength >= b.Strength {
		return a
	}
	if b.Confidence >= a.Confidence && b.Strength >= a.Strength {
		return b
	}
	if b.Confidence > a.Confidence {
		return b
	}
	return a
}

func indexByKey(rels []store.Relationship) map[string]store.Relationship {
	m := make(map[string]store.Relationship, len(rels))
	for _, r := range rels {
		m[r.Key()] = r
	}
	return m
}

func valuesSorted(m map[string]store.Relationship) []store.Relationship {
	out := make([]store.Relationship, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// UpdateOp names an operation in Update's batch.
type UpdateOp string

const (
	OpAdd    UpdateOp = "add"
	OpUpdate UpdateOp = "update"
	OpRemove UpdateOp = "remove"
)

// UpdateEntry is one instruction in an Update batch.
type UpdateEntry struct {
	Rel store.Relationship
	Op  UpdateOp
}

// UpdateResult reports Update's outcome.
type UpdateResult struct {
	Updated int
	Errors  []string
}

// Update applies a batch of add/update/remove operations to memoryID's
// relationships. Add is idempotent by (type,target); update requires the
// pair to pre-exist; remove is silent when absent.
func (s *Service) Update(ctx context.Context, table, memoryID, namespace string, entries []UpdateEntry) (UpdateResult, error) {
	const op = "relationships.Update"
	rec, err := s.st.GetMemory(ctx, table, memoryID, namespace)
	if err != nil {
		return UpdateResult{}, err
	}
	if rec == nil {
		return UpdateResult{}, engineerr.New(op, engineerr.NotFound, "memory not found: "+memoryID)
	}

	generalByKey := indexByKey(rec.Relationships)
	supersedesByKey := indexByKey(rec.Supersedes)

	var result UpdateResult
	for _, e := range entries {
		target := generalByKey
		if e.Rel.Type == "SUPERSEDES" {
			target = supersedesByKey
		}
		key := e.Rel.Key()
		switch e.Op {
		case OpAdd:
			if err := validateRelationship(e.Rel); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if _, exists := target[key]; !exists {
				target[key] = e.Rel
			}
			result.Updated++
		case OpUpdate:
			if _, exists := target[key]; !exists {
				result.Errors = append(result.Errors, "cannot update nonexistent relationship: "+key)
				continue
			}
			if err := validateRelationship(e.Rel); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			target[key] = e.Rel
			result.Updated++
		case OpRemove:
			delete(target, key)
			result.Updated++
		default:
			result.Errors = append(result.Errors, "unknown op: "+string(e.Op))
		}
	}

	if err := s.st.UpdateRelationships(ctx, table, memoryID, namespace, valuesSorted(generalByKey), valuesSorted(supersedesByKey)); err != nil {
		return result, err
	}
	return result, nil
}

// QueryOptions configures ByQuery.
type QueryOptions struct {
	RelationshipType string
	SourceMemoryID   string
	TargetMemoryID   string
	MinConfidence    float64
	MinStrength      float64
	Namespace        string
	Limit            int
}

// QueryMatch is one matching relationship entry projected from a record scan.
type QueryMatch struct {
	SourceMemoryID string
	Relationship   store.Relationship
}

// ByQuery scans records in namespace and projects matching relationship
// entries, sorted by (confidence+strength)/2 descending.
func (s *Service) ByQuery(ctx context.Context, table string, opts QueryOptions) ([]QueryMatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var recs []*store.MemoryRecord
	var err error
	if opts.SourceMemoryID != "" {
		rec, gErr := s.st.GetMemory(ctx, table, opts.SourceMemoryID, opts.Namespace)
		if gErr != nil {
			return nil, gErr
		}
		if rec != nil {
			recs = []*store.MemoryRecord{rec}
		}
	} else {
		recs, err = s.st.ListMemories(ctx, table, store.ListFilters{Namespace: opts.Namespace, Limit: 1000})
		if err != nil {
			return nil, err
		}
	}

	var matches []QueryMatch
	for _, rec := range recs {
		all := append(append([]store.Relationship{}, rec.Relationships...), rec.Supersedes...)
		for _, r := range all {
			if opts.RelationshipType != "" && r.Type != opts.RelationshipType {
				continue
			}
			if opts.TargetMemoryID != "" && r.TargetMemoryID != opts.TargetMemoryID {
				continue
			}
			if r.Confidence < opts.MinConfidence || r.Strength < opts.MinStrength {
				continue
			}
			matches = append(matches, QueryMatch{SourceMemoryID: rec.ID, Relationship: r})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		si := (matches[i].Relationship.Confidence + matches[i].Relationship.Strength) / 2
		sj := (matches[j].Relationship.Confidence + matches[j].Relationship.Strength) / 2
		return si > sj
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// NetworkEntry is one edge discovered during Network traversal.
type NetworkEntry struct {
	Relationship store.Relationship
	Direction    string // "outgoing" | "incoming"
	Depth        int
}

// NetworkStats summarizes a traversal.
type NetworkStats struct {
	Total       int
	MaxDepth    int
	UniqueTypes []string
}

// NetworkResult is Network's return value.
type NetworkResult struct {
	MemoryID string
	Entries  []NetworkEntry
	Stats    NetworkStats
}

// Network performs BFS from memoryID up to maxDepth, avoiding cycles with a
// single visited set: each record is reached at most once, by its first
// (shortest) path.
func (s *Service) Network(ctx context.Context, table, memoryID, namespace string, maxDepth int) (*NetworkResult, error) {
	const op = "relationships.Network"
	if maxDepth <= 0 {
		maxDepth = 2
	}
	if maxDepth > 5 {
		maxDepth = 5
	}

	root, err := s.st.GetMemory(ctx, table, memoryID, namespace)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, engineerr.New(op, engineerr.NotFound, "memory not found: "+memoryID)
	}

	allRecs, err := s.st.ListMemories(ctx, table, store.ListFilters{Namespace: namespace, Limit: 1000})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.MemoryRecord, len(allRecs))
	for _, r := range allRecs {
		byID[r.ID] = r
	}
	byID[root.ID] = root

	result := &NetworkResult{MemoryID: memoryID}
	visited := map[string]bool{memoryID: true}
	typeSeen := map[string]bool{}

	type frontier struct {
		id    string
		depth int
	}
	queue := []frontier{{memoryID, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		rec, ok := byID[cur.id]
		if !ok {
			continue
		}
		for _, r := range append(append([]store.Relationship{}, rec.Relationships...), rec.Supersedes...) {
			if visited[r.TargetMemoryID] {
				continue
			}
			result.Entries = append(result.Entries, NetworkEntry{Relationship: r, Direction: "outgoing", Depth: cur.depth + 1})
			typeSeen[r.Type] = true
			visited[r.TargetMemoryID] = true
			queue = append(queue, frontier{r.TargetMemoryID, cur.depth + 1})
		}
	}

	result.Stats.Total = len(result.Entries)
	for _, e := range result.Entries {
		if e.Depth > result.Stats.MaxDepth {
			result.Stats.MaxDepth = e.Depth
		}
	}
	for t := range typeSeen {
		result.Stats.UniqueTypes = append(result.Stats.UniqueTypes, t)
	}
	sort.Strings(result.Stats.UniqueTypes)
	return result, nil
}

// Conflict describes a detected conflict for a target memory id.
type Conflict struct {
	TargetMemoryID string
	Reason         string
	Kept           []store.Relationship
	Dropped        []store.Relationship
}

// DetectConflicts finds, per target memory id referenced from rels,
// contradictory pairs (CONTRADICTION and CONTINUATION to the same target),
// multiple SUPERSEDES, or a confidence spread > 0.5, and resolves by keeping
// the top-2 ranked by 0.6*confidence + 0.4*strength.
func DetectConflicts(rels []store.Relationship) []Conflict {
	byTarget := make(map[string][]store.Relationship)
	for _, r := range rels {
		byTarget[r.TargetMemoryID] = append(byTarget[r.TargetMemoryID], r)
	}

	var conflicts []Conflict
	for target, group := range byTarget {
		if len(group) < 2 {
			continue
		}
		reason := conflictReason(group)
		if reason == "" {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return rank(group[i]) > rank(group[j])
		})
		kept := group
		var dropped []store.Relationship
		if len(group) > 2 {
			kept, dropped = group[:2], group[2:]
		}
		conflicts = append(conflicts, Conflict{TargetMemoryID: target, Reason: reason, Kept: kept, Dropped: dropped})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].TargetMemoryID < conflicts[j].TargetMemoryID })
	return conflicts
}

func rank(r store.Relationship) float64 { return 0.6*r.Confidence + 0.4*r.Strength }

func conflictReason(group []store.Relationship) string {
	hasContradiction, hasContinuation, supersedesCount := false, false, 0
	minConf, maxConf := 1.0, 0.0
	for _, r := range group {
		switch r.Type {
		case "CONTRADICTION":
			hasContradiction = true
		case "CONTINUATION":
			hasContinuation = true
		case "SUPERSEDES":
			supersedesCount++
		}
		if r.Confidence < minConf {
			minConf = r.Confidence
		}
		if r.Confidence > maxConf {
			maxConf = r.Confidence
		}
	}
	switch {
	case hasContradiction && hasContinuation:
		return "contradictory types to same target"
	case supersedesCount > 1:
		return "multiple SUPERSEDES to same target"
	case maxConf-minConf > 0.5:
		return "confidence spread exceeds 0.5"
	default:
		return ""
	}
}

// MissingReciprocal names a RELATED edge A->B with no reciprocal B->A.
type MissingReciprocal struct {
	From string
	To   string
}

// CheckBidirectional reports RELATED edges lacking their reciprocal.
// Reporting only: no reciprocal is auto-created.
func CheckBidirectional(recordsByID map[string]*store.MemoryRecord) []MissingReciprocal {
	var missing []MissingReciprocal
	for id, rec := range recordsByID {
		for _, r := range rec.Relationships {
			if r.Type != "RELATED" {
				continue
			}
			target, ok := recordsByID[r.TargetMemoryID]
			if !ok {
				continue
			}
			if !hasReciprocal(target, id) {
				missing = append(missing, MissingReciprocal{From: id, To: r.TargetMemoryID})
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].From != missing[j].From {
			return missing[i].From < missing[j].From
		}
		return missing[i].To < missing[j].To
	})
	return missing
}

func hasReciprocal(rec *store.MemoryRecord, backTo string) bool {
	for _, r := range rec.Relationships {
		if r.Type == "RELATED" && r.TargetMemoryID == backTo {
			return true
		}
	}
	return false
}

// Extract deterministically derives relationships between src and recent
// records in namespace (bounded to the extraction window), per §4.4.
func (s *Service) Extract(ctx context.Context, table string, src *store.MemoryRecord) ([]store.Relationship, error) {
	candidates, err := s.st.RecentMemories(ctx, table, src.Namespace, s.extractionWindow)
	if err != nil {
		return nil, err
	}

	srcTokens := tokenize(src.Content)
	var extracted []store.Relationship
	for _, cand := range candidates {
		if cand.ID == src.ID {
			continue
		}
		cs := candidateScore{
			candidate:         cand,
			contentSimilarity: jaccard(srcTokens, tokenize(cand.Content)),
			topicOverlap:      topicOverlap(src.Topic, src.Entities, cand.Topic, cand.Entities),
			temporalRef:       containsAny(src.Content, temporalPhrases) || containsAny(cand.Content, temporalPhrases),
		}
		if !(cs.contentSimilarity > 0.6 || cs.topicOverlap > 0.4 || cs.temporalRef) {
			continue
		}

		relType, ok := classify(src, cand, cs)
		if !ok {
			continue
		}
		strength, confidence := strengthConfidence(src, cand, cs)
		if confidence < 0.3 {
			continue
		}

		extracted = append(extracted, store.Relationship{
			Type: relType, TargetMemoryID: cand.ID,
			Confidence: confidence, Strength: strength,
			Reason:  fmt.Sprintf("deterministic extraction: %s match", relType),
			Context: fmt.Sprintf("contentSimilarity=%.2f topicOverlap=%.2f", cs.contentSimilarity, cs.topicOverlap),
			Entities: src.Entities,
		})
	}
	return extracted, nil
}
