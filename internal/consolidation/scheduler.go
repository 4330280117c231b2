package consolidation

import (
	"context"
	"sync"
	"time"
)

// Config drives the scheduler cadence and thresholds, mirroring
// pkg/config.ConsolidationConfig.
type Config struct {
	Enabled                 bool
	IntervalMinutes         int
	MaxConsolidationsPerRun int
	SimilarityThreshold     float64
	DryRun                  bool
}

// DefaultConfig returns the §4.7 scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		IntervalMinutes:         60,
		MaxConsolidationsPerRun: 10,
		SimilarityThreshold:     0.7,
		DryRun:                  false,
	}
}

// Scheduler runs the Service's detect/consolidate pipeline on a cadence
// over one (table, namespace). Start/Stop follow the ticker+stopCh+
// WaitGroup idiom used throughout the engine's background managers.
type Scheduler struct {
	svc   *Service
	cfg   Config
	table string
	ns    string

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewScheduler builds a Scheduler over svc for the given table/namespace.
func NewScheduler(svc *Service, cfg Config, table, namespace string) *Scheduler {
	return &Scheduler{svc: svc, cfg: cfg, table: table, ns: namespace}
}

// Start launches the background ticker. A no-op if cfg.Enabled is false or
// Start was already called.
func (sch *Scheduler) Start() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.started || !sch.cfg.Enabled || sch.cfg.IntervalMinutes <= 0 {
		return
	}
	sch.started = true
	sch.stopCh = make(chan struct{})
	sch.wg.Add(1)
	go sch.run()
}

// Stop halts the ticker and waits for any in-flight run to finish.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	if !sch.started {
		sch.mu.Unlock()
		return
	}
	sch.started = false
	close(sch.stopCh)
	sch.mu.Unlock()
	sch.wg.Wait()
}

func (sch *Scheduler) run() {
	defer sch.wg.Done()
	interval := time.Duration(sch.cfg.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			sch.tick(ctx)
			cancel()
		case <-sch.stopCh:
			return
		}
	}
}

// tick runs one scheduled pass: skip if analytics report poor health,
// otherwise detect duplicates for up to MaxConsolidationsPerRun recent
// primaries and consolidate the ones whose confidence clears 0.8.
func (sch *Scheduler) tick(ctx context.Context) {
	stats, err := sch.svc.Analytics(ctx, sch.table, sch.ns)
	if err != nil {
		log.Warn("scheduled consolidation analytics failed", "error", err)
		return
	}
	if stats.OverallHealth == "poor" {
		log.Warn("skipping scheduled consolidation, overall health is poor", "ratio", stats.ConsolidationRatio)
		return
	}

	records, err := sch.svc.st.RecentMemories(ctx, sch.table, sch.ns, sch.cfg.MaxConsolidationsPerRun)
	if err != nil {
		log.Warn("scheduled consolidation recent-memory scan failed", "error", err)
		return
	}

	ran := 0
	for _, r := range records {
		if ran >= sch.cfg.MaxConsolidationsPerRun {
			break
		}
		if r.Consolidation != nil && (r.Consolidation.IsDuplicate || r.Consolidation.IsConsolidated) {
			continue
		}
		candidates, err := sch.svc.Detect(ctx, sch.table, sch.ns, r.Content, sch.cfg.SimilarityThreshold)
		if err != nil {
			log.Warn("scheduled detect failed", "memory_id", r.ID, "error", err)
			continue
		}
		var qualifying []string
		for _, c := range candidates {
			if c.Confidence >= 0.8 {
				qualifying = append(qualifying, c.DupID)
			}
		}
		if len(qualifying) == 0 {
			continue
		}
		if sch.cfg.DryRun {
			log.Info("dry run: would consolidate", "primary", r.ID, "duplicates", qualifying)
			ran++
			continue
		}
		if _, err := sch.svc.Consolidate(ctx, sch.table, sch.ns, r.ID, qualifying); err != nil {
			log.Warn("scheduled consolidate failed", "primary", r.ID, "error", err)
			continue
		}
		ran++
	}
}
