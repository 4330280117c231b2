package store

import (
	"context"
	"testing"
	"time"
)

func sampleRecord(id, namespace string) *MemoryRecord {
	now := time.Now().UTC()
	return &MemoryRecord{
		ID: id, Namespace: namespace, Content: "hello from " + id,
		Classification: "CONVERSATIONAL", Importance: "MEDIUM", ImportanceScore: 0.5,
		Entities: []string{"go"}, Keywords: []string{"hello"},
		ConfidenceScore: 0.8, CreatedAt: now, UpdatedAt: now, ExtractionTimestamp: now,
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := sampleRecord("m1", "default")

	if err := s.InsertMemory(ctx, TableLongTerm, r); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	got, err := s.GetMemory(ctx, TableLongTerm, "m1", "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil || got.Content != r.Content {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Entities) != 1 || got.Entities[0] != "go" {
		t.Fatalf("expected entities preserved, got %v", got.Entities)
	}
}

func TestGetMemoryNamespaceScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := sampleRecord("m1", "tenant-a")
	if err := s.InsertMemory(ctx, TableLongTerm, r); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	got, err := s.GetMemory(ctx, TableLongTerm, "m1", "tenant-b")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil across namespaces, got %+v", got)
	}
}

func TestUpdateMemoryReturnsFalseWhenMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ok, err := s.UpdateMemory(ctx, TableLongTerm, sampleRecord("missing", "default"))
	if err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	if ok {
		t.Fatal("expected false for missing record")
	}
}

func TestListMemoriesOrderedByCreatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		r := sampleRecord(id, "default")
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.InsertMemory(ctx, TableLongTerm, r); err != nil {
			t.Fatalf("InsertMemory(%s): %v", id, err)
		}
	}

	out, err := s.ListMemories(ctx, TableLongTerm, ListFilters{Namespace: "default", Limit: 10})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(out) != 3 || out[0].ID != "m3" || out[2].ID != "m1" {
		t.Fatalf("expected descending order by created_at, got %v", idsOf(out))
	}
}

func idsOf(recs []*MemoryRecord) []string {
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestListMemoriesMinImportanceFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	high := sampleRecord("high", "default")
	high.Importance, high.ImportanceScore = "HIGH", ImportanceScores["HIGH"]
	low := sampleRecord("low", "default")
	low.Importance, low.ImportanceScore = "LOW", ImportanceScores["LOW"]

	for _, r := range []*MemoryRecord{high, low} {
		if err := s.InsertMemory(ctx, TableLongTerm, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	out, err := s.ListMemories(ctx, TableLongTerm, ListFilters{Namespace: "default", MinImportance: "HIGH", Limit: 10})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(out) != 1 || out[0].ID != "high" {
		t.Fatalf("expected only the HIGH record, got %v", idsOf(out))
	}
}

func TestDeleteRelationshipsTargetingCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := sampleRecord("target", "default")
	if err := s.InsertMemory(ctx, TableLongTerm, target); err != nil {
		t.Fatalf("insert target: %v", err)
	}
	source := sampleRecord("source", "default")
	source.Relationships = []Relationship{{Type: "RELATED", TargetMemoryID: "target", Confidence: 0.5, Strength: 0.5}}
	if err := s.InsertMemory(ctx, TableLongTerm, source); err != nil {
		t.Fatalf("insert source: %v", err)
	}

	if err := s.DeleteRelationshipsTargeting(ctx, TableLongTerm, "default", "target"); err != nil {
		t.Fatalf("DeleteRelationshipsTargeting: %v", err)
	}

	got, err := s.GetMemory(ctx, TableLongTerm, "source", "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if len(got.Relationships) != 0 {
		t.Fatalf("expected relationships targeting 'target' removed, got %v", got.Relationships)
	}
}
