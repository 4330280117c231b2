package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/provider"
	"github.com/memengine/memengine/internal/search"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/pkg/config"
)

type fakeProvider struct {
	content string
	err     error
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	if f.err != nil {
		return provider.Response{}, f.err
	}
	return provider.Response{Content: f.content}, nil
}

func newTestEngine(t *testing.T, client provider.Client) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "test.db")
	cfg.Consolidation.Enabled = false
	e, err := New(cfg, client)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestStoreChatWithProviderExtraction(t *testing.T) {
	client := &fakeProvider{content: `{"content":"likes Go","summary":"user likes Go","classification":"personal","importance":"high","confidenceScore":0.9}`}
	e := newTestEngine(t, client)

	id, err := e.StoreChat(context.Background(), StoreChatOptions{
		Namespace: "default", UserInput: "I like Go", AIOutput: "Noted.",
	})
	if err != nil {
		t.Fatalf("StoreChat: %v", err)
	}

	rec, err := e.GetMemory(context.Background(), id, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record to be stored")
	}
	if rec.Classification != "PERSONAL" || rec.Importance != "HIGH" {
		t.Fatalf("expected extraction to drive classification/importance, got %+v", rec)
	}
}

func TestStoreChatFallsBackWithoutProvider(t *testing.T) {
	e := newTestEngine(t, nil)

	id, err := e.StoreChat(context.Background(), StoreChatOptions{
		Namespace: "default", UserInput: "what's up", AIOutput: "not much",
	})
	if err != nil {
		t.Fatalf("StoreChat: %v", err)
	}

	rec, err := e.GetMemory(context.Background(), id, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if rec.Classification != "CONVERSATIONAL" {
		t.Fatalf("expected fallback classification, got %s", rec.Classification)
	}
}

func TestStoreChatFallsBackOnProviderError(t *testing.T) {
	client := &fakeProvider{err: errBoom{}}
	e := newTestEngine(t, client)

	id, err := e.StoreChat(context.Background(), StoreChatOptions{
		Namespace: "default", UserInput: "hello", AIOutput: "hi",
	})
	if err != nil {
		t.Fatalf("StoreChat: %v", err)
	}
	rec, err := e.GetMemory(context.Background(), id, "default")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if rec.Classification != "CONVERSATIONAL" {
		t.Fatalf("expected fallback on provider error, got %s", rec.Classification)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestSearchMemoriesDispatchesToFTS(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.StoreMemory(ctx, memory.StoreOptions{
		Namespace: "default", Content: "golang channels are great for coordination",
		Classification: "CONVERSATIONAL", Importance: "MEDIUM",
	})
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	results, err := e.SearchMemories(ctx, search.Query{Text: "golang", Namespace: "default"})
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one FTS hit")
	}
}

func TestGetAndTransitionMemoryState(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := e.StoreChat(ctx, StoreChatOptions{Namespace: "default", UserInput: "a", AIOutput: "b"})
	if err != nil {
		t.Fatalf("StoreChat: %v", err)
	}

	if state := e.GetMemoryState(id); state != "PROCESSED" {
		t.Fatalf("expected PROCESSED after store, got %s", state)
	}

	if err := e.TransitionMemoryState(ctx, id, statemachine.ConsciousPending, statemachine.TransitionOptions{Reason: "test"}); err != nil {
		t.Fatalf("TransitionMemoryState: %v", err)
	}
}
