package relationships

import (
	"strings"
	"time"
	"unicode"

	"github.com/memengine/memengine/internal/store"
)

// tokenize lowercases and splits text into a set of tokens longer than two
// runes, matching the corpus's token-filter threshold for Jaccard comparisons.
func tokenize(text string) map[string]struct{} {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(' ')
	}
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(b.String()) {
		if len(f) > 2 {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}

// jaccard is the intersection-over-union of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var continuationPhrases = []string{"continuing", "as mentioned", "following up", "to continue", "picking up from"}
var referencePhrases = []string{"referring to", "regarding", "as noted", "see also", "in reference to"}
var contradictionPhrases = []string{"actually", "instead", "contrary to", "that's wrong", "correction", "no longer true"}
var temporalPhrases = []string{"yesterday", "today", "tomorrow", "last week", "next week", "earlier", "later", "recently", "now", "then"}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// entityOverlap is the Jaccard similarity of two entity sets.
func entityOverlap(a, b []string) float64 {
	sa, sb := make(map[string]struct{}, len(a)), make(map[string]struct{}, len(b))
	for _, e := range a {
		sa[strings.ToLower(e)] = struct{}{}
	}
	for _, e := range b {
		sb[strings.ToLower(e)] = struct{}{}
	}
	return jaccard(sa, sb)
}

// topicOverlap blends a topic-phrase match with entity-overlap ratio (§4.4).
func topicOverlap(srcTopic string, srcEntities []string, candTopic string, candEntities []string) float64 {
	topicMatch := 0.0
	if srcTopic != "" && strings.EqualFold(srcTopic, candTopic) {
		topicMatch = 1.0
	} else if srcTopic != "" && candTopic != "" && strings.Contains(strings.ToLower(candTopic), strings.ToLower(srcTopic)) {
		topicMatch = 0.5
	}
	return 0.5*topicMatch + 0.5*entityOverlap(srcEntities, candEntities)
}

// candidateScore holds the intermediate similarity signals computed for one
// (source, candidate) pair during extraction.
type candidateScore struct {
	candidate         *store.MemoryRecord
	contentSimilarity float64
	topicOverlap      float64
	temporalRef       bool
}

// classify determines the relationship type for a qualifying candidate
// (§4.4 step 3).
func classify(src, cand *store.MemoryRecord, cs candidateScore) (string, bool) {
	hasContinuation := containsAny(src.Content, continuationPhrases) || containsAny(cand.Content, continuationPhrases)
	hasReference := containsAny(src.Content, referencePhrases) || containsAny(cand.Content, referencePhrases)
	hasContradiction := containsAny(src.Content, contradictionPhrases) || containsAny(cand.Content, contradictionPhrases)

	switch {
	case hasContinuation || cs.contentSimilarity > 0.3:
		return "CONTINUATION", true
	case hasReference && cs.contentSimilarity > 0.15:
		return "REFERENCE", true
	case !hasReference && cs.contentSimilarity > 0.30:
		return "REFERENCE", true
	case cs.topicOverlap > 0.5:
		return "RELATED", true
	case hasContradiction && cs.contentSimilarity > 0.4:
		return "CONTRADICTION", true
	default:
		return "", false
	}
}

// strengthConfidence computes strength/confidence per §4.4 step 4 using the
// candidate's age relative to now, entity overlap, and content
// similarity as the semantic factor.
func strengthConfidence(src, cand *store.MemoryRecord, cs candidateScore) (strength, confidence float64) {
	ageDays := time.Since(cand.CreatedAt).Hours() / 24
	temporalFactor := 1 - ageDays/30
	if temporalFactor < 0.1 {
		temporalFactor = 0.1
	}
	entityFactor := 2 * entityOverlap(src.Entities, cand.Entities)
	if entityFactor > 1.0 {
		entityFactor = 1.0
	}
	semanticFactor := cs.contentSimilarity

	base := cs.contentSimilarity
	strength = 0.4*base + 0.3*temporalFactor + 0.2*entityFactor + 0.1*semanticFactor
	confidence = 0.4*base + 0.3*temporalFactor + 0.2*entityFactor + 0.1*semanticFactor + 0.1
	return clamp01(strength), clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
