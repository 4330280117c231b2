package search

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

func insertRecord(t *testing.T, st *store.Store, namespace, content, importance string, age time.Duration) *store.MemoryRecord {
	t.Helper()
	now := time.Now().UTC().Add(-age)
	r := &store.MemoryRecord{
		ID:              uuid.NewString(),
		Namespace:       namespace,
		Content:         content,
		Classification:  "CONVERSATIONAL",
		Importance:      importance,
		ImportanceScore: store.ImportanceScores[importance],
		CreatedAt:       now,
		UpdatedAt:       now,
		ExtractionTimestamp: now,
	}
	if err := st.InsertMemory(context.Background(), store.TableLongTerm, r); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}
	return r
}

func TestFTSStrategySearch(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "default", "Go channels are a pipe between goroutines", "HIGH", time.Hour)
	insertRecord(t, st, "default", "TypeScript interfaces define object structure", "MEDIUM", time.Hour)
	insertRecord(t, st, "other", "TypeScript generics advanced patterns", "MEDIUM", time.Hour)

	strat := NewFTSStrategy(st.DB())
	if !strat.CanHandle(Query{Text: "typescript"}) {
		t.Fatal("expected FTS strategy to claim a non-empty text query")
	}

	results, err := strat.Search(context.Background(), Query{Text: "TypeScript", Namespace: "default"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result scoped to namespace default, got %d", len(results))
	}
	if results[0].Score <= 0 || results[0].Score > 1 {
		t.Fatalf("expected score in (0,1], got %v", results[0].Score)
	}
}

func TestFTSStrategyImportanceFilter(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "default", "TypeScript decorators overview", "LOW", time.Hour)
	insertRecord(t, st, "default", "TypeScript interfaces deep dive", "HIGH", time.Hour)

	strat := NewFTSStrategy(st.DB())
	results, err := strat.Search(context.Background(), Query{Text: "TypeScript", Namespace: "default", MinImportance: "HIGH"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result at or above HIGH importance, got %d", len(results))
	}
}

func TestRecencyStrategyOrdering(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "default", "an hour old note", "MEDIUM", time.Hour)
	insertRecord(t, st, "default", "a week old note", "MEDIUM", 7*24*time.Hour)

	strat := NewRecencyStrategy(st.DB())
	if !strat.CanHandle(Query{}) {
		t.Fatal("expected recency strategy to claim an empty query")
	}

	results, err := strat.Search(context.Background(), Query{Namespace: "default"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "an hour old note" {
		t.Fatalf("expected the hour-old record to rank first, got %q", results[0].Content)
	}
}

func TestRecencyStrategyRelativeFilter(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "default", "recent", "MEDIUM", time.Hour)
	insertRecord(t, st, "default", "stale", "MEDIUM", 10*24*time.Hour)

	strat := NewRecencyStrategy(st.DB())
	results, err := strat.Search(context.Background(), Query{Namespace: "default", Since: "2 days ago"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "recent" {
		t.Fatalf("expected only the recent record to survive the since filter, got %+v", results)
	}
}

func TestDispatcherRoutesByCanHandle(t *testing.T) {
	st := newTestStore(t)
	insertRecord(t, st, "default", "Go channels are like pipes", "MEDIUM", time.Hour)

	d := NewDispatcher(NewFTSStrategy(st.DB()), NewRecencyStrategy(st.DB()))

	results, err := d.Search(context.Background(), Query{Text: "channels", Namespace: "default"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Strategy != "fts" {
		t.Fatalf("expected the FTS strategy to handle a text query, got %+v", results)
	}

	results, err = d.Search(context.Background(), Query{Namespace: "default"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Strategy != "recency" {
		t.Fatalf("expected the recency strategy to handle an empty-text query, got %+v", results)
	}
}
