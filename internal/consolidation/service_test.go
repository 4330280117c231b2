package consolidation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
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
	sm := statemachine.New(st, statemachine.Config{})
	return New(st, sm), st
}

func insertRecord(t *testing.T, st *store.Store, id, content string) *store.MemoryRecord {
	t.Helper()
	now := time.Now().UTC()
	r := &store.MemoryRecord{
		ID:                  id,
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
	return r
}

const longContent = "TypeScript interfaces define the shape of an object and let the compiler check structural conformance across a large codebase with many contributors working at once"

func TestDetectFindsNearDuplicate(t *testing.T) {
	svc, st := newTestService(t)
	insertRecord(t, st, uuid.NewString(), longContent)

	candidates, err := svc.Detect(context.Background(), store.TableLongTerm, "default", longContent, 0.7)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 near-duplicate candidate, got %d", len(candidates))
	}
	if candidates[0].Recommendation != "merge" {
		t.Fatalf("expected a near-identical record to recommend merge, got %s", candidates[0].Recommendation)
	}
}

func TestValidateEligibilityRejectsOverLimit(t *testing.T) {
	svc, _ := newTestService(t)
	dupIDs := make([]string, 101)
	for i := range dupIDs {
		dupIDs[i] = uuid.NewString()
	}
	result := svc.ValidateEligibility("primary", dupIDs)
	if result.IsValid {
		t.Fatal("expected 101 dupIds to be rejected")
	}
}

func TestValidateEligibilityWarnsOver50(t *testing.T) {
	svc, _ := newTestService(t)
	dupIDs := make([]string, 60)
	for i := range dupIDs {
		dupIDs[i] = uuid.NewString()
	}
	result := svc.ValidateEligibility("primary", dupIDs)
	if !result.IsValid {
		t.Fatalf("expected 60 dupIds to be valid with a warning, got errors %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for more than 50 dupIds")
	}
}

func TestConsolidateAndRollback(t *testing.T) {
	svc, st := newTestService(t)
	primary := insertRecord(t, st, uuid.NewString(), longContent)
	dup1 := insertRecord(t, st, uuid.NewString(), longContent)
	dup2 := insertRecord(t, st, uuid.NewString(), longContent)

	result, err := svc.Consolidate(context.Background(), store.TableLongTerm, "default", primary.ID, []string{dup1.ID, dup2.ID})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if !result.Success || result.ConsolidatedCount != 2 {
		t.Fatalf("expected success with 2 consolidated, got %+v", result)
	}
	if len(result.Hash) != 16 {
		t.Fatalf("expected a 16-hex-char hash, got %q", result.Hash)
	}

	after, err := st.GetMemory(context.Background(), store.TableLongTerm, primary.ID, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if after.Consolidation == nil || !after.Consolidation.IsConsolidated {
		t.Fatal("expected primary to be marked consolidated")
	}
	token := after.Consolidation.RollbackToken
	if token == "" {
		t.Fatal("expected a non-empty rollback token")
	}

	afterDup, err := st.GetMemory(context.Background(), store.TableLongTerm, dup1.ID, "default")
	if err != nil {
		t.Fatalf("GetMemory dup: %v", err)
	}
	if afterDup.Consolidation == nil || !afterDup.Consolidation.IsDuplicate || afterDup.Consolidation.DuplicateOf != primary.ID {
		t.Fatalf("expected duplicate to be flagged against the primary, got %+v", afterDup.Consolidation)
	}

	rbResult, err := svc.Rollback(context.Background(), store.TableLongTerm, "default", primary.ID, token)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !rbResult.Success || rbResult.Restored != 2 {
		t.Fatalf("expected rollback to restore 2 records, got %+v", rbResult)
	}

	restored, err := st.GetMemory(context.Background(), store.TableLongTerm, primary.ID, "default")
	if err != nil {
		t.Fatalf("GetMemory after rollback: %v", err)
	}
	if restored.Consolidation != nil && restored.Consolidation.IsConsolidated {
		t.Fatal("expected primary to no longer be consolidated after rollback")
	}
}

func TestRollbackRejectsEmptyToken(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Rollback(context.Background(), store.TableLongTerm, "default", "some-id", ""); err == nil {
		t.Fatal("expected rollback with an empty token to fail")
	}
}

func TestCleanupOldDryRunSkipsDeletion(t *testing.T) {
	svc, st := newTestService(t)
	old := time.Now().UTC().AddDate(0, 0, -40)
	dupID := uuid.NewString()
	insertRecord(t, st, dupID, "a stale duplicate")
	if err := st.UpdateConsolidation(context.Background(), store.TableLongTerm, dupID, "default", &store.ConsolidationMeta{
		IsDuplicate: true, DuplicateOf: "primary", ConsolidatedAt: &old,
	}); err != nil {
		t.Fatalf("UpdateConsolidation: %v", err)
	}

	result, err := svc.CleanupOld(context.Background(), store.TableLongTerm, "default", 30, true)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if result.Skipped != 1 || result.Cleaned != 0 {
		t.Fatalf("expected 1 skipped and 0 cleaned in dry run, got %+v", result)
	}

	rec, err := st.GetMemory(context.Background(), store.TableLongTerm, dupID, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if rec == nil {
		t.Fatal("expected dry run to leave the record in place")
	}
}

func TestAnalyticsComputesHealth(t *testing.T) {
	svc, _ := newTestService(t)
	stats, err := svc.Analytics(context.Background(), store.TableLongTerm, "default")
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if stats.OverallHealth != "excellent" {
		t.Fatalf("expected an empty namespace to report excellent health, got %s", stats.OverallHealth)
	}
}
