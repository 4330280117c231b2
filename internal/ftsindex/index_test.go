package ftsindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func insertRecord(t *testing.T, st *store.Store, content string) {
	t.Helper()
	now := time.Now().UTC()
	r := &store.MemoryRecord{
		ID:                  uuid.NewString(),
		Namespace:           "default",
		Content:             content,
		Classification:      "CONVERSATIONAL",
		Importance:          "MEDIUM",
		ImportanceScore:     store.ImportanceScores["MEDIUM"],
		CreatedAt:           now,
		UpdatedAt:           now,
		ExtractionTimestamp: now,
	}
	if err := st.InsertMemory(context.Background(), store.TableLongTerm, r); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}
}

func TestHealthReportExcellentOnFreshIndex(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "a clean memory record")

	m := New(st, DefaultConfig())
	report, err := m.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Health != Excellent && report.Health != Good {
		t.Fatalf("expected a fresh, trigger-populated index to score well, got %v (score %v)", report.Health, report.Score)
	}
}

func TestHealthReportDetectsDrift(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "one record")
	if _, err := st.DB().Exec(`DELETE FROM memory_fts`); err != nil {
		t.Fatalf("drop fts rows: %v", err)
	}

	m := New(st, DefaultConfig())
	report, err := m.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if len(report.Issues) == 0 {
		t.Fatal("expected drift between source rows and fts rows to surface as an issue")
	}
}

func TestOptimizeRebuildResynchronizesIndex(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "first record")
	insertRecord(t, st, "second record")
	if _, err := st.DB().Exec(`DELETE FROM memory_fts`); err != nil {
		t.Fatalf("drop fts rows: %v", err)
	}

	m := New(st, DefaultConfig())
	result, err := m.Optimize(context.Background(), Rebuild)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if result.RowsTouched != 2 {
		t.Fatalf("expected rebuild to reinsert 2 rows, got %d", result.RowsTouched)
	}

	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM memory_fts`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 fts rows after rebuild, got %d", count)
	}
}

func TestOptimizeRefusesConcurrentRun(t *testing.T) {
	st := newTestStore(t)
	if !st.TryOptimizeLock() {
		t.Fatal("expected to acquire the optimize lock")
	}
	defer st.ReleaseOptimizeLock()

	m := New(st, DefaultConfig())
	_, err := m.Optimize(context.Background(), Vacuum)
	if err == nil {
		t.Fatal("expected Optimize to refuse while another optimization holds the lock")
	}
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "a record worth keeping")

	m := New(st, DefaultConfig())
	meta, err := m.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if meta.RowCount != 1 {
		t.Fatalf("expected 1 row backed up, got %d", meta.RowCount)
	}

	if _, err := st.DB().Exec(`DELETE FROM memory_fts`); err != nil {
		t.Fatalf("wipe fts: %v", err)
	}

	ok, err := m.Restore(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !ok {
		t.Fatal("expected restore to succeed")
	}

	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM memory_fts`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row restored, got %d", count)
	}
}

func TestRestoreRejectsUnknownBackup(t *testing.T) {
	st := newTestStore(t)
	m := New(st, DefaultConfig())
	if _, err := m.Restore(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected restoring an unknown backup id to fail")
	}
}

func TestStartStopSchedulerIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	m := New(st, Config{HealthCheckInterval: time.Hour, OptimizationCheckInterval: time.Hour, BackupInterval: time.Hour})
	m.Start()
	m.Start()
	m.Stop()
	m.Stop()
}
