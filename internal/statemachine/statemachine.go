// Package statemachine implements the State Manager (component B): per-
// record state, valid transitions, history, retry with backoff, and
// metrics. There is no base-repo equivalent for this component; it is
// authored directly from §3/§4.2, in the base repo's idiom (namespace-free
// in-memory state guarded by a mutex, persisted alongside the record store).
package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/store"
)

var log = logging.GetLogger("statemachine")

// States in the lifecycle DAG described by §3.
const (
	Pending                  = "PENDING"
	Processing               = "PROCESSING"
	Processed                = "PROCESSED"
	ConsciousPending          = "CONSCIOUS_PENDING"
	ConsciousProcessing       = "CONSCIOUS_PROCESSING"
	ConsciousProcessed        = "CONSCIOUS_PROCESSED"
	DuplicateCheckPending     = "DUPLICATE_CHECK_PENDING"
	DuplicateCheckProcessing  = "DUPLICATE_CHECK_PROCESSING"
	ConsolidationPending      = "CONSOLIDATION_PENDING"
	ConsolidationProcessing   = "CONSOLIDATION_PROCESSING"
	Consolidated              = "CONSOLIDATED"
	CleanupPending            = "CLEANUP_PENDING"
	CleanupProcessing         = "CLEANUP_PROCESSING"
	Cleaned                   = "CLEANED"
	Failed                    = "FAILED"
)

// VALID_TRANSITIONS is the static DAG keyed by from-state, per §9.
var VALID_TRANSITIONS = map[string][]string{
	Pending:                  {Processing, Failed},
	Processing:               {Processed, Failed},
	Processed:                {ConsciousPending, DuplicateCheckPending, Failed},
	ConsciousPending:         {ConsciousProcessing, Failed},
	ConsciousProcessing:      {ConsciousProcessed, Failed},
	ConsciousProcessed:       {DuplicateCheckPending, Failed},
	DuplicateCheckPending:    {DuplicateCheckProcessing, Failed},
	DuplicateCheckProcessing: {ConsolidationPending, CleanupPending, Failed},
	ConsolidationPending:     {ConsolidationProcessing, Failed},
	ConsolidationProcessing:  {Consolidated, Failed},
	Consolidated:             {CleanupPending, Failed},
	CleanupPending:           {CleanupProcessing, Failed},
	CleanupProcessing:        {Cleaned, Failed},
	Cleaned:                  {}, // terminal
	Failed:                   {Pending, CleanupPending},
}

// HistoryEntry is a single recorded transition.
type HistoryEntry struct {
	ID               string
	MemoryID         string
	FromState        string
	ToState          string
	Timestamp        time.Time
	Reason           string
	Metadata         map[string]any
	AgentID          string
	ErrorMessage     string
	ProcessingTimeMs int64
}

// Metrics aggregates transition counters.
type Metrics struct {
	TransitionCounts map[string]int // keyed by "FROM->TO"
	StateCounts      map[string]int
}

// TransitionOptions configures a single transition call.
type TransitionOptions struct {
	Reason           string
	Metadata         map[string]any
	AgentID          string
	ProcessingTimeMs int64
}

type recordState struct {
	current string
	history []HistoryEntry
}

// Manager is the State Manager. MaxHistoryEntries bounds history per record
// with FIFO eviction.
type Manager struct {
	mu                sync.RWMutex
	records           map[string]*recordState
	maxHistoryEntries int
	enableHistory     bool
	enableMetrics     bool

	metricsMu        sync.Mutex
	transitionCounts map[string]int
	stateCounts      map[string]int

	st *store.Store
}

// Config configures the State Manager, mirroring Config.StateManager.
type Config struct {
	EnableHistoryTracking bool
	EnableMetrics         bool
	MaxHistoryEntries     int
}

// New constructs a Manager. st may be nil for a purely in-memory manager
// (tests); when non-nil, transitions are also persisted to state_transitions.
func New(st *store.Store, cfg Config) *Manager {
	if cfg.MaxHistoryEntries <= 0 {
		cfg.MaxHistoryEntries = 100
	}
	return &Manager{
		records:           make(map[string]*recordState),
		maxHistoryEntries: cfg.MaxHistoryEntries,
		enableHistory:     cfg.EnableHistoryTracking,
		enableMetrics:     cfg.EnableMetrics,
		transitionCounts:  make(map[string]int),
		stateCounts:       make(map[string]int),
		st:                st,
	}
}

// Initialize sets a record's starting state, defaulting to PENDING.
func (m *Manager) Initialize(id string, state string) {
	if state == "" {
		state = Pending
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = &recordState{current: state}
	m.bumpStateCount(state)
}

// Current returns a record's current state, or "" if unknown.
func (m *Manager) Current(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.records[id]
	if !ok {
		return ""
	}
	return rs.current
}

// CanTransitionTo reports whether target is a valid successor of id's
// current state.
func (m *Manager) CanTransitionTo(id, target string) bool {
	return m.ValidateTransition(id, target) == nil
}

// ValidateTransition checks target against VALID_TRANSITIONS for id's
// current state, returning an INVALID_TRANSITION error (with a suggested
// state) on failure.
func (m *Manager) ValidateTransition(id, target string) error {
	current := m.Current(id)
	if current == "" {
		current = Pending
	}
	successors := VALID_TRANSITIONS[current]
	for _, s := range successors {
		if s == target {
			return nil
		}
	}
	suggestion := suggestState(target, successors)
	err := engineerr.New("statemachine.ValidateTransition", engineerr.InvalidTransition,
		fmt.Sprintf("%s is not a valid transition from %s", target, current))
	if suggestion != "" {
		err = err.WithSuggestion(suggestion)
	}
	return err
}

// suggestState finds the closest candidate to target by Levenshtein ratio,
// per §4.2/§9 ("ratio >= 0.3... a hint, not a contract").
func suggestState(target string, candidates []string) string {
	best := ""
	bestRatio := 0.0
	for _, c := range candidates {
		dist := levenshtein.ComputeDistance(target, c)
		maxLen := len(target)
		if len(c) > maxLen {
			maxLen = len(c)
		}
		if maxLen == 0 {
			continue
		}
		ratio := 1.0 - float64(dist)/float64(maxLen)
		if ratio >= 0.3 && ratio > bestRatio {
			bestRatio = ratio
			best = c
		}
	}
	return best
}

// Transition moves id from its current state to target, writing one history
// row and bumping counters. Self-transition is a warning, not an error.
func (m *Manager) Transition(ctx context.Context, id, target string, opts TransitionOptions) error {
	m.mu.Lock()
	rs, ok := m.records[id]
	if !ok {
		rs = &recordState{current: Pending}
		m.records[id] = rs
	}
	current := rs.current
	m.mu.Unlock()

	if current == target {
		log.Warn("self-transition", "memory_id", id, "state", target)
	} else if err := m.ValidateTransition(id, target); err != nil {
		return err
	}

	entry := HistoryEntry{
		ID:               uuid.NewString(),
		MemoryID:         id,
		FromState:        current,
		ToState:          target,
		Timestamp:        time.Now().UTC(),
		Reason:           opts.Reason,
		Metadata:         opts.Metadata,
		AgentID:          opts.AgentID,
		ProcessingTimeMs: opts.ProcessingTimeMs,
	}

	m.mu.Lock()
	rs.current = target
	if m.enableHistory {
		rs.history = append(rs.history, entry)
		if len(rs.history) > m.maxHistoryEntries {
			rs.history = rs.history[len(rs.history)-m.maxHistoryEntries:]
		}
	}
	m.mu.Unlock()

	if m.enableMetrics {
		m.bumpTransitionCount(current, target)
		m.bumpStateCount(target)
	}

	if m.st != nil {
		if err := m.persist(ctx, entry); err != nil {
			// State-tracking side effects never mask the primary result (§7).
			log.Warn("failed to persist state transition", "memory_id", id, "error", err)
		}
	}

	return nil
}

func (m *Manager) persist(ctx context.Context, e HistoryEntry) error {
	metaJSON := "{}"
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			metaJSON = string(b)
		}
	}
	_, err := m.st.DB().ExecContext(ctx, `INSERT INTO state_transitions
		(id, memory_id, from_state, to_state, timestamp, reason, metadata_json, agent_id, error_message, processing_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MemoryID, e.FromState, e.ToState, e.Timestamp, e.Reason, metaJSON, e.AgentID, e.ErrorMessage, e.ProcessingTimeMs)
	return err
}

// History returns id's transition history, oldest first.
func (m *Manager) History(id string) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.records[id]
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, len(rs.history))
	copy(out, rs.history)
	return out
}

// ByState returns all record ids currently in the given state.
func (m *Manager) ByState(state string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, rs := range m.records {
		if rs.current == state {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Clear removes a record's tracked state entirely.
func (m *Manager) Clear(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

func (m *Manager) bumpTransitionCount(from, to string) {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.transitionCounts[from+"->"+to]++
}

func (m *Manager) bumpStateCount(state string) {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.stateCounts[state]++
}

// MetricsSnapshot returns a copy of the current transition/state counters.
func (m *Manager) MetricsSnapshot() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	out := Metrics{
		TransitionCounts: make(map[string]int, len(m.transitionCounts)),
		StateCounts:      make(map[string]int, len(m.stateCounts)),
	}
	for k, v := range m.transitionCounts {
		out.TransitionCounts[k] = v
	}
	for k, v := range m.stateCounts {
		out.StateCounts[k] = v
	}
	return out
}

// linearBackOff implements backoff.BackOff with delay_i = delayMs * i, the
// literal formula §4.2 specifies (not cenkalti's default exponential curve).
type linearBackOff struct {
	delayMs    int64
	attempt    int64
	maxRetries int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.maxRetries {
		return backoff.Stop
	}
	return time.Duration(b.delayMs*b.attempt) * time.Millisecond
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Retry attempts to transition id to target, retrying up to maxRetries times
// with delay_i = delayMs*i between attempts. Returns true on the first
// accepted transition; false (logged) after exhausting attempts.
func (m *Manager) Retry(ctx context.Context, id, target string, maxRetries int, delayMs int64) bool {
	bo := &linearBackOff{delayMs: delayMs, maxRetries: int64(maxRetries)}
	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = m.Transition(ctx, id, target, TransitionOptions{Reason: "retry"})
		return lastErr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		log.Error("retry exhausted", "memory_id", id, "target", target, "attempts", maxRetries, "error", lastErr)
		return false
	}
	return true
}
