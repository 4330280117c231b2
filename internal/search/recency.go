package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/memengine/memengine/internal/engineerr"
)

// RecencyStrategy answers queries with empty text or temporal filters,
// scoring rows by exponential time decay plus a freshness-tier boost
// (§4.6).
type RecencyStrategy struct {
	db       *sql.DB
	halfLife time.Duration
	minScore float64
	maxScore float64
}

// NewRecencyStrategy builds a RecencyStrategy with the default 7-day
// half-life.
func NewRecencyStrategy(db *sql.DB) *RecencyStrategy {
	return &RecencyStrategy{
		db:       db,
		halfLife: 7 * 24 * time.Hour,
		minScore: 0,
		maxScore: 1,
	}
}

func (s *RecencyStrategy) Name() string { return "recency" }

func (s *RecencyStrategy) CanHandle(q Query) bool {
	if strings.TrimSpace(q.Text) == "" {
		return true
	}
	return q.Since != "" || q.YoungerThan != "" || q.OlderThan != "" ||
		q.CreatedAfter != nil || q.CreatedBefore != nil
}

var relativeAgoRe = regexp.MustCompile(`(?i)^\s*(\d+)\s*(second|minute|hour|day|week|month|year)s?\s*(ago)?\s*$`)
var comparativeAgeRe = regexp.MustCompile(`(?i)^\s*(younger|older)\s*than\s*(\d+)\s*(second|minute|hour|day|week|month|year)s?\s*$`)

// unitDuration maps a parsed unit name to its approximate duration, per the
// relative-expression grammar in §4.6.
func unitDuration(unit string, n int) time.Duration {
	switch strings.ToLower(unit) {
	case "second":
		return time.Duration(n) * time.Second
	case "minute":
		return time.Duration(n) * time.Minute
	case "hour":
		return time.Duration(n) * time.Hour
	case "day":
		return time.Duration(n) * 24 * time.Hour
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour
	case "month":
		return time.Duration(n) * 30 * 24 * time.Hour
	case "year":
		return time.Duration(n) * 365 * 24 * time.Hour
	default:
		return 0
	}
}

// parseRelative parses a "N unit[s][ ago]" expression into an absolute
// cutoff time relative to now.
func parseRelative(expr string, now time.Time) (time.Time, bool) {
	m := relativeAgoRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	return now.Add(-unitDuration(m[2], n)), true
}

// parseComparativeAge parses "younger than N unit[s]" / "older than N
// unit[s]" into (cutoff, isYounger).
func parseComparativeAge(expr string, now time.Time) (cutoff time.Time, isYounger bool, ok bool) {
	m := comparativeAgeRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, false, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false, false
	}
	cutoff = now.Add(-unitDuration(m[3], n))
	return cutoff, strings.EqualFold(m[1], "younger"), true
}

// resolveBounds folds q.Since/q.YoungerThan/q.OlderThan/q.CreatedAfter/
// q.CreatedBefore into a single (after, before) bound, evaluated against now.
func resolveBounds(q Query, now time.Time) (after, before *time.Time) {
	after, before = q.CreatedAfter, q.CreatedBefore

	if q.Since != "" {
		if t, ok := parseRelative(q.Since, now); ok {
			after = &t
		}
	}
	if q.YoungerThan != "" {
		if cutoff, isYounger, ok := parseComparativeAge(q.YoungerThan, now); ok && isYounger {
			after = &cutoff
		}
	}
	if q.OlderThan != "" {
		if cutoff, _, ok := parseComparativeAge(q.OlderThan, now); ok {
			before = &cutoff
		}
	}
	return after, before
}

// freshnessBoost buckets age into the §4.6 freshness table.
func freshnessBoost(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 2.0
	case age < 24*time.Hour:
		return 1.5
	case age < 7*24*time.Hour:
		return 1.2
	default:
		return 1.1
	}
}

// timeRelevance computes the exponential decay score for an age against
// halfLife, clamped to [minScore, maxScore].
func (s *RecencyStrategy) timeRelevance(age time.Duration) float64 {
	relevance := math.Exp(-math.Ln2 * age.Seconds() / s.halfLife.Seconds())
	if relevance < s.minScore {
		relevance = s.minScore
	}
	if relevance > s.maxScore {
		relevance = s.maxScore
	}
	return relevance
}

type recencyRow struct {
	id              string
	content         string
	meta            map[string]any
	createdAt       time.Time
	importanceScore float64
	timeRelevance   float64
	score           float64
}

func (s *RecencyStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	now := time.Now().UTC()
	after, before := resolveBounds(q, now)

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var args []any
	query := `SELECT rowid, content, metadata_json FROM memory_fts WHERE 1=1`
	if q.Namespace != "" {
		query += ` AND json_extract(metadata_json, '$.namespace') = ?`
		args = append(args, q.Namespace)
	}
	if q.MinImportance != "" {
		// MinImportance is not applied by this strategy: no importance
		// condition is added, so rows of every importance are returned.
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.Wrap("search.RecencyStrategy.Search", engineerr.Store, "query failed", err)
	}
	defer rows.Close()

	var candidates []recencyRow
	for rows.Next() {
		var rowID int64
		var content, metaJSON string
		if err := rows.Scan(&rowID, &content, &metaJSON); err != nil {
			return nil, engineerr.Wrap("search.RecencyStrategy.Search", engineerr.Store, "scan failed", err)
		}

		var meta map[string]any
		_ = json.Unmarshal([]byte(metaJSON), &meta)

		createdAtStr, _ := meta["created_at"].(string)
		// Rows written through the driver carry its timestamp layout; rows
		// from SQL defaults or an index rebuild carry the plain layout.
		var createdAt time.Time
		var perr error
		for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if createdAt, perr = time.Parse(layout, createdAtStr); perr == nil {
				break
			}
		}
		if perr != nil {
			continue
		}

		if after != nil && createdAt.Before(*after) {
			continue
		}
		if before != nil && createdAt.After(*before) {
			continue
		}

		importance, _ := meta["importance_score"].(float64)
		age := now.Sub(createdAt)
		rel := s.timeRelevance(age)
		score := clamp01(rel * freshnessBoost(age))

		id, _ := meta["id"].(string)
		if id == "" {
			id = fmt.Sprintf("%d", rowID)
		}

		candidates = append(candidates, recencyRow{
			id:              id,
			content:         content,
			meta:            meta,
			createdAt:       createdAt,
			importanceScore: importance,
			timeRelevance:   rel,
			score:           score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].timeRelevance != candidates[j].timeRelevance {
			return candidates[i].timeRelevance > candidates[j].timeRelevance
		}
		if candidates[i].importanceScore != candidates[j].importanceScore {
			return candidates[i].importanceScore > candidates[j].importanceScore
		}
		return candidates[i].createdAt.After(candidates[j].createdAt)
	})

	if q.Offset > 0 && q.Offset < len(candidates) {
		candidates = candidates[q.Offset:]
	} else if q.Offset >= len(candidates) {
		candidates = nil
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Result{
			ID:        c.id,
			Content:   c.content,
			Metadata:  c.meta,
			Score:     c.score,
			Strategy:  s.Name(),
			Timestamp: c.createdAt,
		})
	}
	return out, nil
}
