package statemachine

import (
	"context"
	"testing"

	"github.com/memengine/memengine/internal/engineerr"
)

func TestInitializeDefaultsToPending(t *testing.T) {
	m := New(nil, Config{EnableHistoryTracking: true, EnableMetrics: true, MaxHistoryEntries: 10})
	m.Initialize("r1", "")
	if got := m.Current("r1"); got != Pending {
		t.Fatalf("expected %s, got %s", Pending, got)
	}
}

func TestValidTransitionSequence(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Config{EnableHistoryTracking: true, EnableMetrics: true, MaxHistoryEntries: 10})
	m.Initialize("r1", Pending)

	for _, target := range []string{Processing, Processed} {
		if err := m.Transition(ctx, "r1", target, TransitionOptions{}); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}
	if got := m.Current("r1"); got != Processed {
		t.Fatalf("expected %s, got %s", Processed, got)
	}

	hist := m.History("r1")
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i-1].ToState != hist[i].FromState {
			t.Fatalf("history not contiguous at %d", i)
		}
	}
}

func TestInvalidTransitionReturnsSuggestion(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Config{MaxHistoryEntries: 10})
	m.Initialize("r1", Processed)

	err := m.Transition(ctx, "r1", ConsolidationProcessing, TransitionOptions{})
	if err == nil {
		t.Fatal("expected INVALID_TRANSITION error")
	}
	if engineerr.KindOf(err) != engineerr.InvalidTransition {
		t.Fatalf("expected InvalidTransition kind, got %v", engineerr.KindOf(err))
	}
}

func TestFailedIsReachableFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()
	for state := range VALID_TRANSITIONS {
		if state == Cleaned {
			continue
		}
		m := New(nil, Config{MaxHistoryEntries: 10})
		m.Initialize("r1", state)
		if err := m.Transition(ctx, "r1", Failed, TransitionOptions{}); err != nil {
			t.Fatalf("expected FAILED reachable from %s, got %v", state, err)
		}
	}
}

func TestSelfTransitionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Config{MaxHistoryEntries: 10})
	m.Initialize("r1", Processed)
	if err := m.Transition(ctx, "r1", Processed, TransitionOptions{}); err != nil {
		t.Fatalf("self-transition should not error: %v", err)
	}
}

func TestRetrySucceedsOnValidTarget(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Config{MaxHistoryEntries: 10})
	m.Initialize("r1", Pending)

	ok := m.Retry(ctx, "r1", Processing, 3, 1)
	if !ok {
		t.Fatal("expected retry to succeed on a valid transition")
	}
}

func TestRetryFailsAfterExhaustingAttempts(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Config{MaxHistoryEntries: 10})
	m.Initialize("r1", Cleaned)

	ok := m.Retry(ctx, "r1", Processing, 2, 1)
	if ok {
		t.Fatal("expected retry to fail: CLEANED has no valid successors")
	}
}
