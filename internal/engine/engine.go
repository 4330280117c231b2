package engine

import (
	"sync"
	"time"

	"github.com/memengine/memengine/internal/consolidation"
	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/ftsindex"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/provider"
	"github.com/memengine/memengine/internal/relationships"
	"github.com/memengine/memengine/internal/search"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
	"github.com/memengine/memengine/pkg/config"
)

var log = logging.GetLogger("engine")

// Engine is the Orchestration Facade (component H). Build one with New and
// tear it down with Close; a zero-value Engine is not usable.
type Engine struct {
	cfg *config.Config

	st         *store.Store
	sm         *statemachine.Manager
	mem        *memory.Service
	rel        *relationships.Service
	dispatcher *search.Dispatcher
	fts        *ftsindex.Manager
	cons       *consolidation.Service
	consSched  *consolidation.Scheduler
	provider   provider.Client

	extractMu     sync.Mutex
	extractActive map[string]bool // §9 recursion hazard: records mid-extraction
}

// New opens the store at cfg.DatabaseURL, migrates its schema, and wires
// every component. client may be nil; storeChat then falls back to the
// deterministic record for every call (no provider configured).
func New(cfg *config.Config, client provider.Client) (*Engine, error) {
	const op = "engine.New"
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, engineerr.Wrap(op, engineerr.Config, "invalid configuration", err)
	}
	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, engineerr.Wrap(op, engineerr.Config, "cannot create config directory", err)
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, engineerr.Wrap(op, engineerr.Store, "open store", err)
	}
	st.SetSlowQueryThresholdMs(cfg.Performance.SlowQueryThresholdMs)
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, engineerr.Wrap(op, engineerr.Store, "init schema", err)
	}

	sm := statemachine.New(st, statemachine.Config{
		EnableHistoryTracking: cfg.StateManager.EnableHistoryTracking,
		EnableMetrics:         cfg.StateManager.EnableMetrics,
		MaxHistoryEntries:     cfg.StateManager.MaxHistoryEntries,
	})
	mem := memory.New(st, sm, cfg.MaxContentLength)
	rel := relationships.New(st, cfg.MaxRelationshipsPerMemory)
	dispatcher := search.NewDispatcher(
		search.NewFTSStrategy(st.DB()),
		search.NewRecencyStrategy(st.DB()),
	)

	ftsDefaults := ftsindex.DefaultConfig()
	fts := ftsindex.New(st, ftsindex.Config{
		HealthCheckInterval:       msOrDefault(cfg.Maintenance.HealthCheckMs, ftsDefaults.HealthCheckInterval),
		OptimizationCheckInterval: msOrDefault(cfg.Maintenance.OptimizationCheckMs, ftsDefaults.OptimizationCheckInterval),
		BackupInterval:            msOrDefault(cfg.Maintenance.BackupMs, ftsDefaults.BackupInterval),
	})

	cons := consolidation.New(st, sm)
	consSched := consolidation.NewScheduler(cons, consolidation.Config{
		Enabled:                 cfg.Consolidation.Enabled,
		IntervalMinutes:         cfg.Consolidation.IntervalMinutes,
		MaxConsolidationsPerRun: cfg.Consolidation.MaxConsolidationsPerRun,
		SimilarityThreshold:     cfg.Consolidation.SimilarityThreshold,
		DryRun:                  cfg.Consolidation.DryRun,
	}, store.TableLongTerm, cfg.Namespace)

	e := &Engine{
		cfg: cfg, st: st, sm: sm, mem: mem, rel: rel, dispatcher: dispatcher,
		fts: fts, cons: cons, consSched: consSched, provider: client,
		extractActive: make(map[string]bool),
	}

	fts.Start()
	if cfg.Consolidation.Enabled {
		consSched.Start()
	}

	log.LogOperation("engine_started", "database_url", cfg.DatabaseURL, "namespace", cfg.Namespace)
	return e, nil
}

// msOrDefault converts a millisecond config value to a time.Duration,
// falling back to fallback when ms is not positive.
func msOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Close stops every background scheduler and closes the underlying store.
// Per §9 ("Global state"), scheduler timers are torn down here and nowhere
// else — no process-wide singletons survive a closed Engine.
func (e *Engine) Close() error {
	e.fts.Stop()
	e.consSched.Stop()
	return e.st.Close()
}

// Store exposes the underlying Store Context for callers (CLI, HTTP) that
// need raw access, e.g. for a health endpoint.
func (e *Engine) Store() *store.Store { return e.st }
