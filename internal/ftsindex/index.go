// Package ftsindex implements the FTS Index Manager (component E): health
// scoring, optimize/repair/backup/restore over the store's memory_fts
// virtual table, and a background scheduler that runs them on a cadence.
package ftsindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/store"
)

var log = logging.GetLogger("ftsindex")

// HealthBucket classifies a HealthReport's numeric score (§4.5).
type HealthBucket string

const (
	Excellent HealthBucket = "EXCELLENT"
	Good      HealthBucket = "GOOD"
	Degraded  HealthBucket = "DEGRADED"
	Critical  HealthBucket = "CRITICAL"
	Corrupted HealthBucket = "CORRUPTED"
)

// OptimizeKind names one of the four maintenance operations.
type OptimizeKind string

const (
	Rebuild OptimizeKind = "REBUILD"
	Merge   OptimizeKind = "MERGE"
	Compact OptimizeKind = "COMPACT"
	Vacuum  OptimizeKind = "VACUUM"
)

// HealthReport is the result of healthReport() (§4.5).
type HealthReport struct {
	Health          HealthBucket
	Score           float64
	Stats           map[string]any
	Issues          []string
	Recommendations []string
	EstOptMs        int64
}

// OptimizeResult is the result of optimize()/repair().
type OptimizeResult struct {
	Kind       OptimizeKind
	RowsTouched int
	DurationMs  int64
}

// BackupMetadata describes a completed backup.
type BackupMetadata struct {
	ID        string
	RowCount  int
	Checksum  uint32
	CreatedAt time.Time
}

// Manager is the FTS Index Manager. It owns no state beyond the scheduler
// goroutines; the optimize gate itself lives on store.Store per §9 ("global
// state belongs to the Store Context").
type Manager struct {
	st  *store.Store
	cfg Config

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// Config configures the scheduler cadence, mirroring
// pkg/config.MaintenanceConfig.
type Config struct {
	HealthCheckInterval      time.Duration
	OptimizationCheckInterval time.Duration
	BackupInterval            time.Duration
}

// DefaultConfig returns the §4.5 default cadence: hourly health, daily
// optimization check, weekly backup.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:       time.Hour,
		OptimizationCheckInterval: 24 * time.Hour,
		BackupInterval:            7 * 24 * time.Hour,
	}
}

// New constructs a Manager bound to st.
func New(st *store.Store, cfg Config) *Manager {
	return &Manager{st: st, cfg: cfg}
}

// fragmentationRatio estimates fragmentation from the main database file's
// free-page ratio; SQLite shares the page pool across ordinary and virtual
// tables, so this is a reasonable proxy without a dedicated FTS5 stat API.
func (m *Manager) fragmentationRatio(db *sql.DB) float64 {
	var pageCount, freelistCount int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil || pageCount == 0 {
		return 0
	}
	if err := db.QueryRow("PRAGMA freelist_count").Scan(&freelistCount); err != nil {
		return 0
	}
	return float64(freelistCount) / float64(pageCount)
}

// corruptionRatio measures the fraction of source rows (with non-empty
// content) that have no corresponding memory_fts row, i.e. FTS drift.
func (m *Manager) corruptionRatio(ctx context.Context) (float64, int, int, error) {
	db := m.st.DB()
	var sourceCount, ftsCount int

	row := db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM long_term_memory WHERE content IS NOT NULL AND content != '') +
		(SELECT COUNT(*) FROM short_term_memory WHERE content IS NOT NULL AND content != '')`)
	if err := row.Scan(&sourceCount); err != nil {
		return 0, 0, 0, engineerr.Wrap("ftsindex.corruptionRatio", engineerr.Store, "count source rows failed", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_fts`).Scan(&ftsCount); err != nil {
		return 0, 0, 0, engineerr.Wrap("ftsindex.corruptionRatio", engineerr.Store, "count fts rows failed", err)
	}
	if sourceCount == 0 {
		return 0, sourceCount, ftsCount, nil
	}
	diff := sourceCount - ftsCount
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(sourceCount), sourceCount, ftsCount, nil
}

// HealthReport computes the §4.5 health score: 1 − (0.8·corruption +
// 0.3·fragmentation + perf penalty + size penalty), bucketed into
// EXCELLENT/GOOD/DEGRADED/CRITICAL/CORRUPTED.
func (m *Manager) HealthReport(ctx context.Context) (*HealthReport, error) {
	corruption, sourceCount, ftsCount, err := m.corruptionRatio(ctx)
	if err != nil {
		return nil, err
	}
	fragmentation := m.fragmentationRatio(m.st.DB())

	stats := m.st.GetStats()
	perfPenalty := 0.0
	if stats.TotalOps > 0 {
		perfPenalty = stats.AvgDurationMs / 500.0
		if perfPenalty > 1 {
			perfPenalty = 1
		}
	}

	sizePenalty := float64(ftsCount) / 1_000_000.0
	if sizePenalty > 1 {
		sizePenalty = 1
	}

	score := 1 - (0.8*corruption + 0.3*fragmentation + 0.2*perfPenalty + 0.1*sizePenalty)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	var issues, recs []string
	if corruption > 0.01 {
		issues = append(issues, fmt.Sprintf("fts row drift: %d source rows vs %d fts rows", sourceCount, ftsCount))
		recs = append(recs, "run optimize(REBUILD) to resynchronize memory_fts")
	}
	if fragmentation > 0.2 {
		issues = append(issues, fmt.Sprintf("database fragmentation ratio %.2f", fragmentation))
		recs = append(recs, "run optimize(VACUUM)")
	}
	if perfPenalty > 0.3 {
		issues = append(issues, "average store operation latency is elevated")
		recs = append(recs, "run optimize(MERGE) to reduce segment count")
	}

	var bucket HealthBucket
	switch {
	case corruption > 0.5:
		bucket = Corrupted
	case score >= 0.9:
		bucket = Excellent
	case score >= 0.7:
		bucket = Good
	case score >= 0.4:
		bucket = Degraded
	default:
		bucket = Critical
	}

	return &HealthReport{
		Health: bucket,
		Score:  score,
		Stats: map[string]any{
			"source_rows": sourceCount,
			"fts_rows":    ftsCount,
			"corruption":  corruption,
			"fragmentation": fragmentation,
		},
		Issues:          issues,
		Recommendations: recs,
		EstOptMs:        int64(sourceCount) * 2,
	}, nil
}

// Optimize runs one maintenance kind. Concurrent calls are refused with
// OPTIMIZATION_BUSY per §4.5/§9.
func (m *Manager) Optimize(ctx context.Context, kind OptimizeKind) (*OptimizeResult, error) {
	if !m.st.TryOptimizeLock() {
		return nil, engineerr.New("ftsindex.Optimize", engineerr.OptimizationBusy, "a maintenance operation is already running")
	}
	defer m.st.ReleaseOptimizeLock()

	start := time.Now()
	var touched int
	var err error

	switch kind {
	case Rebuild:
		touched, err = m.rebuild(ctx)
	case Merge:
		_, err = m.st.DB().ExecContext(ctx, `INSERT INTO memory_fts(memory_fts, rank) VALUES('merge', 8)`)
	case Compact:
		_, err = m.st.DB().ExecContext(ctx, `INSERT INTO memory_fts(memory_fts) VALUES('optimize')`)
	case Vacuum:
		err = m.st.Vacuum()
	default:
		err = engineerr.New("ftsindex.Optimize", engineerr.Validation, "unknown optimize kind: "+string(kind))
	}

	duration := time.Since(start)
	m.st.RecordOp("optimize_"+string(kind), "memory_fts", start, err == nil, err)
	if err != nil {
		return nil, engineerr.Wrap("ftsindex.Optimize", engineerr.Store, "optimize failed", err)
	}
	return &OptimizeResult{Kind: kind, RowsTouched: touched, DurationMs: duration.Milliseconds()}, nil
}

// rebuild deletes every memory_fts row and reinserts one per source record
// with non-empty content, mirroring the trigger-materialized metadata
// object from §4.1.
func (m *Manager) rebuild(ctx context.Context) (int, error) {
	touched := 0
	err := m.st.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts`); err != nil {
			return err
		}
		for _, spec := range []struct {
			table      string
			memoryType string
			offset     int64
		}{
			{store.TableLongTerm, "long_term", 0},
			{store.TableShortTerm, "short_term", 1_000_000_000},
		} {
			rows, err := tx.QueryContext(ctx, fmt.Sprintf(
				`SELECT rowid, content, classification, importance_score, created_at, namespace, id
				 FROM %s WHERE content IS NOT NULL AND content != ''`, spec.table))
			if err != nil {
				return err
			}
			for rows.Next() {
				var rowid int64
				var content, classification, namespace, id string
				var importanceScore float64
				var createdAt time.Time
				if err := rows.Scan(&rowid, &content, &classification, &importanceScore, &createdAt, &namespace, &id); err != nil {
					rows.Close()
					return err
				}
				meta := map[string]any{
					"memory_type":       spec.memoryType,
					"category_primary":  classification,
					"importance_score":  importanceScore,
					"classification":    classification,
					"created_at":        createdAt.Format("2006-01-02 15:04:05"),
					"namespace":         namespace,
					"id":                id,
				}
				metaJSON, _ := json.Marshal(meta)
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO memory_fts(rowid, content, metadata_json) VALUES (?,?,?)`,
					rowid+spec.offset, content, string(metaJSON)); err != nil {
					rows.Close()
					return err
				}
				touched++
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
		}
		return nil
	})
	return touched, err
}

// Repair is an alias for optimize(REBUILD): the only corrective action the
// engine takes against a degraded FTS index (§4.5).
func (m *Manager) Repair(ctx context.Context) (*OptimizeResult, error) {
	return m.Optimize(ctx, Rebuild)
}

// Backup exports memory_fts rows and their metadata as a JSON payload with
// a 32-bit rolling checksum, persisted under a unique id.
func (m *Manager) Backup(ctx context.Context) (*BackupMetadata, error) {
	rows, err := m.st.DB().QueryContext(ctx, `SELECT rowid, content, metadata_json FROM memory_fts`)
	if err != nil {
		return nil, engineerr.Wrap("ftsindex.Backup", engineerr.Store, "export query failed", err)
	}
	defer rows.Close()

	type backupRow struct {
		RowID    int64  `json:"rowid"`
		Content  string `json:"content"`
		MetaJSON string `json:"metadata_json"`
	}
	var payload []backupRow
	for rows.Next() {
		var r backupRow
		if err := rows.Scan(&r.RowID, &r.Content, &r.MetaJSON); err != nil {
			return nil, engineerr.Wrap("ftsindex.Backup", engineerr.Store, "scan failed", err)
		}
		payload = append(payload, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, engineerr.Wrap("ftsindex.Backup", engineerr.Store, "marshal failed", err)
	}
	checksum := crc32.ChecksumIEEE(payloadJSON)
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err = m.st.DB().ExecContext(ctx,
		`INSERT INTO search_index_backups (id, row_count, checksum, payload, created_at) VALUES (?,?,?,?,?)`,
		id, len(payload), checksum, string(payloadJSON), now)
	if err != nil {
		return nil, engineerr.Wrap("ftsindex.Backup", engineerr.Store, "insert backup failed", err)
	}
	return &BackupMetadata{ID: id, RowCount: len(payload), Checksum: checksum, CreatedAt: now}, nil
}

// Restore verifies a backup's checksum, wipes memory_fts, and reinserts its
// rows atomically.
func (m *Manager) Restore(ctx context.Context, id string) (bool, error) {
	var payloadJSON string
	var checksum uint32
	row := m.st.DB().QueryRowContext(ctx, `SELECT payload, checksum FROM search_index_backups WHERE id = ?`, id)
	if err := row.Scan(&payloadJSON, &checksum); err != nil {
		if err == sql.ErrNoRows {
			return false, engineerr.New("ftsindex.Restore", engineerr.NotFound, "no backup with id "+id)
		}
		return false, engineerr.Wrap("ftsindex.Restore", engineerr.Store, "lookup failed", err)
	}

	if crc32.ChecksumIEEE([]byte(payloadJSON)) != checksum {
		return false, engineerr.New("ftsindex.Restore", engineerr.Validation, "backup checksum mismatch")
	}

	type backupRow struct {
		RowID    int64  `json:"rowid"`
		Content  string `json:"content"`
		MetaJSON string `json:"metadata_json"`
	}
	var payload []backupRow
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return false, engineerr.Wrap("ftsindex.Restore", engineerr.Validation, "backup payload unreadable", err)
	}

	err := m.st.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts`); err != nil {
			return err
		}
		for _, r := range payload {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO memory_fts(rowid, content, metadata_json) VALUES (?,?,?)`,
				r.RowID, r.Content, r.MetaJSON); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, engineerr.Wrap("ftsindex.Restore", engineerr.Store, "restore transaction failed", err)
	}
	return true, nil
}

// Start launches the health/optimization/backup scheduler goroutines.
// Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})

	m.wg.Add(3)
	go m.runTicker(m.cfg.HealthCheckInterval, m.tickHealth)
	go m.runTicker(m.cfg.OptimizationCheckInterval, m.tickOptimization)
	go m.runTicker(m.cfg.BackupInterval, m.tickBackup)
}

// Stop halts the scheduler and waits for in-flight ticks to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) runTicker(interval time.Duration, tick func(ctx context.Context)) {
	defer m.wg.Done()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if m.st.IsShuttingDown() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			tick(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) tickHealth(ctx context.Context) {
	report, err := m.HealthReport(ctx)
	if err != nil {
		log.Warn("health report failed", "error", err)
		return
	}
	log.Info("fts health", "bucket", report.Health, "score", report.Score)
	if report.Health == Critical || report.Health == Corrupted {
		log.Warn("emergency rebuild triggered", "bucket", report.Health)
		if _, err := m.Optimize(ctx, Rebuild); err != nil {
			log.Error("emergency rebuild failed", "error", err)
		}
	}
}

func (m *Manager) tickOptimization(ctx context.Context) {
	report, err := m.HealthReport(ctx)
	if err != nil {
		log.Warn("optimization health check failed", "error", err)
		return
	}
	if len(report.Recommendations) == 0 {
		return
	}
	if _, err := m.Optimize(ctx, Merge); err != nil {
		log.Warn("scheduled optimization failed", "error", err)
	}
}

func (m *Manager) tickBackup(ctx context.Context) {
	if _, err := m.Backup(ctx); err != nil {
		log.Warn("scheduled backup failed", "error", err)
	}
}
