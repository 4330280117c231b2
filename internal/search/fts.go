package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/store"
)

// FTSStrategy answers any query with text, running it against memory_fts
// with BM25 ranking (§4.6).
type FTSStrategy struct {
	db *sql.DB
}

// NewFTSStrategy builds an FTSStrategy over the store's raw connection.
func NewFTSStrategy(db *sql.DB) *FTSStrategy {
	return &FTSStrategy{db: db}
}

func (s *FTSStrategy) Name() string { return "fts" }

// CanHandle claims any query with non-empty text; recency handles the rest.
func (s *FTSStrategy) CanHandle(q Query) bool {
	return strings.TrimSpace(q.Text) != ""
}

// buildFTSMatch strips wildcards, escapes quotes, and joins multi-term
// queries as a phrase-OR expression, per §4.6. Empty input matches all rows.
func buildFTSMatch(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "*", "")
	text = store.EscapeFTS5Query(text)

	terms := strings.Fields(text)
	if len(terms) <= 1 {
		return text
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (s *FTSStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	match := buildFTSMatch(q.Text)

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var args []any
	var where []string

	query := `SELECT rowid, content, metadata_json, bm25(memory_fts) as rank FROM memory_fts`
	if match != "" {
		query += ` WHERE memory_fts MATCH ?`
		args = append(args, match)
	} else {
		query += ` WHERE 1=1`
	}

	if q.Namespace != "" {
		where = append(where, `json_extract(metadata_json, '$.namespace') = ?`)
		args = append(args, q.Namespace)
	}
	if q.MinImportance != "" {
		if score, ok := store.ImportanceScores[q.MinImportance]; ok {
			where = append(where, `json_extract(metadata_json, '$.importance_score') >= ?`)
			args = append(args, score)
		}
	}
	for _, cond := range where {
		query += ` AND ` + cond
	}

	if match != "" {
		query += ` ORDER BY rank`
	} else {
		query += ` ORDER BY json_extract(metadata_json, '$.created_at') DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.Wrap("search.FTSStrategy.Search", engineerr.Store, "fts query failed", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var rowID int64
		var content, metaJSON string
		var rank sql.NullFloat64
		if err := rows.Scan(&rowID, &content, &metaJSON, &rank); err != nil {
			return nil, engineerr.Wrap("search.FTSStrategy.Search", engineerr.Store, "scan failed", err)
		}

		var meta map[string]any
		_ = json.Unmarshal([]byte(metaJSON), &meta)

		// bm25() returns more-negative-is-better; fold to a bounded [0,1]
		// score the way the pack's FTS-over-SQLite idiom does.
		score := 1.0
		if rank.Valid {
			score = 1.0 / (1.0 + math.Abs(rank.Float64))
		}

		id, _ := meta["id"].(string)
		if id == "" {
			id = fmt.Sprintf("%d", rowID)
		}
		var ts time.Time
		if createdAt, ok := meta["created_at"].(string); ok {
			ts, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		}

		out = append(out, Result{
			ID:        id,
			Content:   content,
			Metadata:  meta,
			Score:     clamp01(score),
			Strategy:  s.Name(),
			Timestamp: ts,
		})
	}
	return out, rows.Err()
}
