package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memengine/memengine/internal/engineerr"
)

// ListFilters narrows ListMemories (§4.3 listByNamespace/listByImportance).
type ListFilters struct {
	Namespace      string
	MinImportance  string // compares via ImportanceScores
	Limit          int
	Offset         int
	OrderBy        string // default "created_at DESC"
}

// InsertMemory writes a new record row into the given table
// (TableLongTerm or TableShortTerm).
func (s *Store) InsertMemory(ctx context.Context, table string, r *MemoryRecord) error {
	start := time.Now()
	entitiesJSON, _ := json.Marshal(nonNilStrings(r.Entities))
	keywordsJSON, _ := json.Marshal(nonNilStrings(r.Keywords))
	relJSON, _ := json.Marshal(nonNilRels(r.Relationships))
	supJSON, _ := json.Marshal(nonNilRels(r.Supersedes))
	var consolJSON sql.NullString
	if r.Consolidation != nil {
		b, _ := json.Marshal(r.Consolidation)
		consolJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, namespace, chat_id, content, summary, classification, importance, importance_score,
		 topic, entities_json, keywords_json, confidence_score, classification_reason,
		 relationships_json, supersedes_json, conscious_processed, consolidation_json,
		 created_at, updated_at, extraction_timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table)

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Namespace, nullString(r.ChatID), r.Content, nullString(r.Summary),
		r.Classification, r.Importance, r.ImportanceScore,
		nullString(r.Topic), string(entitiesJSON), string(keywordsJSON),
		r.ConfidenceScore, nullString(r.ClassificationReason),
		string(relJSON), string(supJSON), boolToInt(r.ConsciousProcessed), consolJSON,
		r.CreatedAt, r.UpdatedAt, r.ExtractionTimestamp)

	s.recordOp("insert", table, start, err == nil, err)
	if err != nil {
		return engineerr.Wrap("store.InsertMemory", engineerr.Store, "insert failed", err)
	}
	return nil
}

// GetMemory reads a record by id, namespace-scoped. Returns (nil, nil) when
// absent.
func (s *Store) GetMemory(ctx context.Context, table, id, namespace string) (*MemoryRecord, error) {
	start := time.Now()
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? AND namespace = ?`, memoryColumns, table)
	row := s.db.QueryRowContext(ctx, query, id, namespace)
	r, err := scanMemory(row)
	s.recordOp("get", table, start, err == nil || err == sql.ErrNoRows, errOrNil(err))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engineerr.Wrap("store.GetMemory", engineerr.Store, "query failed", err)
	}
	return r, nil
}

// UpdateMemory overwrites a record's mutable columns. Returns false when no
// row matched.
func (s *Store) UpdateMemory(ctx context.Context, table string, r *MemoryRecord) (bool, error) {
	start := time.Now()
	entitiesJSON, _ := json.Marshal(nonNilStrings(r.Entities))
	keywordsJSON, _ := json.Marshal(nonNilStrings(r.Keywords))
	relJSON, _ := json.Marshal(nonNilRels(r.Relationships))
	supJSON, _ := json.Marshal(nonNilRels(r.Supersedes))
	var consolJSON sql.NullString
	if r.Consolidation != nil {
		b, _ := json.Marshal(r.Consolidation)
		consolJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := fmt.Sprintf(`UPDATE %s SET
		content=?, summary=?, classification=?, importance=?, importance_score=?,
		topic=?, entities_json=?, keywords_json=?, confidence_score=?, classification_reason=?,
		relationships_json=?, supersedes_json=?, conscious_processed=?, consolidation_json=?,
		updated_at=?
		WHERE id=? AND namespace=?`, table)

	res, err := s.db.ExecContext(ctx, query,
		r.Content, nullString(r.Summary), r.Classification, r.Importance, r.ImportanceScore,
		nullString(r.Topic), string(entitiesJSON), string(keywordsJSON),
		r.ConfidenceScore, nullString(r.ClassificationReason),
		string(relJSON), string(supJSON), boolToInt(r.ConsciousProcessed), consolJSON,
		r.UpdatedAt, r.ID, r.Namespace)

	s.recordOp("update", table, start, err == nil, err)
	if err != nil {
		return false, engineerr.Wrap("store.UpdateMemory", engineerr.Store, "update failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMemory removes a record. Returns false when no row matched.
func (s *Store) DeleteMemory(ctx context.Context, table, id, namespace string) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=? AND namespace=?`, table), id, namespace)
	s.recordOp("delete", table, start, err == nil, err)
	if err != nil {
		return false, engineerr.Wrap("store.DeleteMemory", engineerr.Store, "delete failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMemories lists records in a namespace, ordered per filters.
func (s *Store) ListMemories(ctx context.Context, table string, f ListFilters) ([]*MemoryRecord, error) {
	start := time.Now()
	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	if !isSafeOrderBy(orderBy) {
		orderBy = "created_at DESC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var args []any
	where := "namespace = ?"
	args = append(args, f.Namespace)
	if f.MinImportance != "" {
		if score, ok := ImportanceScores[f.MinImportance]; ok {
			where += " AND importance_score >= ?"
			args = append(args, score)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		memoryColumns, table, where, orderBy)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	s.recordOp("list", table, start, err == nil, err)
	if err != nil {
		return nil, engineerr.Wrap("store.ListMemories", engineerr.Store, "query failed", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// isSafeOrderBy allows only a small fixed allowlist to guard against
// building an ORDER BY clause from arbitrary input (§9 input sanitization).
func isSafeOrderBy(clause string) bool {
	allowed := map[string]bool{
		"created_at DESC": true, "created_at ASC": true,
		"updated_at DESC": true, "updated_at ASC": true,
		"importance_score DESC": true, "importance_score ASC": true,
	}
	return allowed[clause]
}

const memoryColumns = `id, namespace, chat_id, content, summary, classification, importance, importance_score,
	topic, entities_json, keywords_json, confidence_score, classification_reason,
	relationships_json, supersedes_json, conscious_processed, consolidation_json,
	created_at, updated_at, extraction_timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*MemoryRecord, error) {
	var r MemoryRecord
	var chatID, summary, topic, classReason sql.NullString
	var entitiesJSON, keywordsJSON, relJSON, supJSON string
	var consolJSON sql.NullString
	var consciousInt int

	err := row.Scan(&r.ID, &r.Namespace, &chatID, &r.Content, &summary, &r.Classification,
		&r.Importance, &r.ImportanceScore, &topic, &entitiesJSON, &keywordsJSON,
		&r.ConfidenceScore, &classReason, &relJSON, &supJSON, &consciousInt, &consolJSON,
		&r.CreatedAt, &r.UpdatedAt, &r.ExtractionTimestamp)
	if err != nil {
		return nil, err
	}

	r.ChatID = chatID.String
	r.Summary = summary.String
	r.Topic = topic.String
	r.ClassificationReason = classReason.String
	r.ConsciousProcessed = consciousInt != 0
	_ = json.Unmarshal([]byte(entitiesJSON), &r.Entities)
	_ = json.Unmarshal([]byte(keywordsJSON), &r.Keywords)
	_ = json.Unmarshal([]byte(relJSON), &r.Relationships)
	_ = json.Unmarshal([]byte(supJSON), &r.Supersedes)
	if consolJSON.Valid {
		var c ConsolidationMeta
		if json.Unmarshal([]byte(consolJSON.String), &c) == nil {
			r.Consolidation = &c
		}
	}
	return &r, nil
}

func scanMemories(rows *sql.Rows) ([]*MemoryRecord, error) {
	var out []*MemoryRecord
	for rows.Next() {
		r, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRels(r []Relationship) []Relationship {
	if r == nil {
		return []Relationship{}
	}
	return r
}

func errOrNil(err error) error {
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

// InsertChatHistory records a raw (userInput, aiOutput) pair, per the
// chat_history table in the store contract (§6).
func (s *Store) InsertChatHistory(ctx context.Context, id, namespace, chatID, userInput, aiOutput string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, namespace, chat_id, user_input, ai_output) VALUES (?,?,?,?,?)`,
		id, namespace, nullString(chatID), userInput, aiOutput)
	s.recordOp("insert", "chat_history", start, err == nil, err)
	if err != nil {
		return engineerr.Wrap("store.InsertChatHistory", engineerr.Store, "insert failed", err)
	}
	return nil
}

// RecentMemories returns up to `limit` most-recent records in namespace,
// used as the candidate window for relationship extraction (§4.4).
func (s *Store) RecentMemories(ctx context.Context, table, namespace string, limit int) ([]*MemoryRecord, error) {
	return s.ListMemories(ctx, table, ListFilters{Namespace: namespace, Limit: limit, OrderBy: "created_at DESC"})
}

// UpdateConsolidation persists only a record's consolidation metadata and
// bumps updated_at, used by the Consolidation Engine (§4.7) so that
// consolidate/rollback don't need to round-trip the full record.
func (s *Store) UpdateConsolidation(ctx context.Context, table, id, namespace string, c *ConsolidationMeta) error {
	start := time.Now()
	var consolJSON sql.NullString
	if c != nil {
		b, _ := json.Marshal(c)
		consolJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET consolidation_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
		consolJSON, time.Now().UTC(), id, namespace)
	s.recordOp("update_consolidation", table, start, err == nil, err)
	if err != nil {
		return engineerr.Wrap("store.UpdateConsolidation", engineerr.Store, "update failed", err)
	}
	return nil
}

// UpdateRelationships persists only a record's relationship/supersedes
// lists, used by the Relationship Engine (§4.4).
func (s *Store) UpdateRelationships(ctx context.Context, table, id, namespace string, rels, supersedes []Relationship) error {
	start := time.Now()
	relJSON, _ := json.Marshal(nonNilRels(rels))
	supJSON, _ := json.Marshal(nonNilRels(supersedes))
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET relationships_json=?, supersedes_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
		string(relJSON), string(supJSON), time.Now().UTC(), id, namespace)
	s.recordOp("update_relationships", table, start, err == nil, err)
	if err != nil {
		return engineerr.Wrap("store.UpdateRelationships", engineerr.Store, "update failed", err)
	}
	return nil
}

// DeleteRelationshipsTargeting removes, across every record in namespace,
// any relationship/supersedes entry whose TargetMemoryID == id. Used by
// Memory Manager's cascade delete (§4.3).
func (s *Store) DeleteRelationshipsTargeting(ctx context.Context, table, namespace, id string) error {
	records, err := s.ListMemories(ctx, table, ListFilters{Namespace: namespace, Limit: 1000})
	if err != nil {
		return err
	}
	for _, r := range records {
		before := len(r.Relationships) + len(r.Supersedes)
		r.Relationships = filterNotTargeting(r.Relationships, id)
		r.Supersedes = filterNotTargeting(r.Supersedes, id)
		if len(r.Relationships)+len(r.Supersedes) != before {
			if err := s.UpdateRelationships(ctx, table, r.ID, namespace, r.Relationships, r.Supersedes); err != nil {
				return err
			}
		}
	}
	return nil
}

func filterNotTargeting(rels []Relationship, targetID string) []Relationship {
	out := rels[:0:0]
	for _, r := range rels {
		if r.TargetMemoryID != targetID {
			out = append(out, r)
		}
	}
	return out
}

// EscapeFTS5Query doubles every double quote so the text can sit inside an
// FTS5 quoted string (§4.6 "never string-interpolate user input" — this
// governs the literal text operand, not the SQL itself). It does not add
// the surrounding quotes, and other FTS5 operators are left as they are.
func EscapeFTS5Query(q string) string {
	q = strings.ReplaceAll(q, `"`, `""`)
	return q
}
