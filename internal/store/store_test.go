package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.InitSchema(); err != nil {
		t.Fatalf("second InitSchema call failed: %v", err)
	}

	for _, table := range []string{"long_term_memory", "short_term_memory", "chat_history", "search_index_backups", "state_transitions", "consolidation_audit"} {
		ok, err := s.TableExists(table)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", table, err)
		}
		if !ok {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestFTSTriggerSync(t *testing.T) {
	s := newTestStore(t)

	_, err := s.DB().Exec(`INSERT INTO long_term_memory
		(id, namespace, content, classification, importance, importance_score)
		VALUES ('m1', 'default', 'hello world', 'CONVERSATIONAL', 'MEDIUM', 0.5)`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM memory_fts WHERE memory_fts MATCH 'hello'").Scan(&count); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 FTS row, got %d", count)
	}

	_, err = s.DB().Exec("DELETE FROM long_term_memory WHERE id = 'm1'")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM memory_fts WHERE memory_fts MATCH 'hello'").Scan(&count); err != nil {
		t.Fatalf("fts query after delete: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected FTS row removed after delete, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	wantErr := sql.ErrNoRows
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO long_term_memory
			(id, namespace, content, classification, importance, importance_score)
			VALUES ('tx1', 'default', 'x', 'CONVERSATIONAL', 'MEDIUM', 0.5)`); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected wrapped error %v, got %v", wantErr, err)
	}

	n, err := s.CountRows("long_term_memory")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rollback to leave 0 rows, got %d", n)
	}
}

func TestOptimizeLockExclusive(t *testing.T) {
	s := newTestStore(t)

	if !s.TryOptimizeLock() {
		t.Fatal("expected first lock to succeed")
	}
	if s.TryOptimizeLock() {
		t.Fatal("expected concurrent lock to fail")
	}
	s.ReleaseOptimizeLock()
	if !s.TryOptimizeLock() {
		t.Fatal("expected lock to succeed after release")
	}
}

func TestProbeHealthy(t *testing.T) {
	s := newTestStore(t)
	if status := s.Probe(); status != HealthHealthy {
		t.Fatalf("expected healthy probe, got %s", status)
	}
}
