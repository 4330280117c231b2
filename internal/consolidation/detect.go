package consolidation

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/store"
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits content into a word set, the same
// bag-of-words idiom used for relationship continuation detection.
func tokenize(content string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range wordRe.FindAllString(strings.ToLower(content), -1) {
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

// jaccard is the set-overlap similarity between two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Detect scans recent records in namespace for near-duplicates of content,
// scoring each by Jaccard token similarity and returning those at or above
// threshold, ranked by descending similarity.
func (s *Service) Detect(ctx context.Context, table, namespace, content string, threshold float64) ([]Candidate, error) {
	if threshold <= 0 {
		threshold = 0.7
	}
	records, err := s.st.RecentMemories(ctx, table, namespace, 200)
	if err != nil {
		return nil, engineerr.Wrap("consolidation.Detect", engineerr.Store, "scan recent memories failed", err)
	}

	srcTokens := tokenize(content)
	var out []Candidate
	for _, r := range records {
		if r.Consolidation != nil && (r.Consolidation.IsDuplicate || r.Consolidation.IsConsolidated) {
			continue
		}
		sim := jaccard(srcTokens, tokenize(r.Content))
		if sim < threshold {
			continue
		}
		conf := confidence(sim, len(content), len(r.Content))
		out = append(out, Candidate{
			DupID:          r.ID,
			Similarity:     sim,
			LengthRatio:    lengthRatio(len(content), len(r.Content)),
			MeanLength:     float64(len(content)+len(r.Content)) / 2,
			Confidence:     conf,
			Recommendation: recommendation(conf),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// ValidateEligibility enforces the §4.7 bounds on a consolidation request:
// more than 100 duplicates is rejected outright, more than 50 is a warning.
func (s *Service) ValidateEligibility(primaryID string, dupIDs []string) EligibilityResult {
	result := EligibilityResult{IsValid: true}

	if primaryID == "" {
		result.IsValid = false
		result.Errors = append(result.Errors, "primaryId is required")
	}
	if len(dupIDs) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "dupIds must be non-empty")
	}
	if len(dupIDs) > 100 {
		result.IsValid = false
		result.Errors = append(result.Errors, "dupIds exceeds the 100-record limit per consolidation")
	} else if len(dupIDs) > 50 {
		result.Warnings = append(result.Warnings, "consolidating more than 50 records in one call is unusually large")
	}

	seen := map[string]struct{}{primaryID: {}}
	for _, id := range dupIDs {
		if id == primaryID {
			result.IsValid = false
			result.Errors = append(result.Errors, "primaryId cannot also appear in dupIds")
			continue
		}
		if _, dup := seen[id]; dup {
			result.Warnings = append(result.Warnings, "duplicate id "+id+" listed more than once")
			continue
		}
		seen[id] = struct{}{}
	}
	return result
}

// MarkDuplicate flags a single record as a duplicate of origID without
// running the full consolidation pipeline, used for manual curation.
func (s *Service) MarkDuplicate(ctx context.Context, table, namespace, dupID, origID, reason string) error {
	rec, err := s.st.GetMemory(ctx, table, dupID, namespace)
	if err != nil {
		return err
	}
	if rec == nil {
		return engineerr.New("consolidation.MarkDuplicate", engineerr.NotFound, "no record "+dupID)
	}
	meta := rec.Consolidation
	if meta == nil {
		meta = &store.ConsolidationMeta{}
	}
	meta.IsDuplicate = true
	meta.DuplicateOf = origID
	meta.ConsolidationReason = reason
	rec.Consolidation = meta
	if err := s.st.UpdateConsolidation(ctx, table, dupID, namespace, meta); err != nil {
		return err
	}
	return nil
}
