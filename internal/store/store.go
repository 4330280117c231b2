// Package store owns the Store Context (component A): the relational
// connection, schema bootstrap, FTS trigger installation, a transactional
// handle, op metrics, and health probing that every other manager in the
// engine depends on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
)

var log = logging.GetLogger("store")

// Store owns the single logical connection to the SQLite database and the
// shared state (metrics, health, optimize gate) every manager reads.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex

	metrics *metricsRing
	health  *healthState

	initializationInProgress bool
	isShuttingDown            bool

	// isOptimizing gates FTS maintenance (owned here per §9 "global state
	// belongs to the Store Context").
	optimizeMu  sync.Mutex
	isOptimizing bool
}

// Open creates (if needed) the database file's directory and opens a
// single-connection SQLite handle with WAL journaling and foreign keys on.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, engineerr.Wrap("store.Open", engineerr.Store, "failed to create database directory", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, engineerr.Wrap("store.Open", engineerr.Store, "failed to open database", err)
	}

	// A single logical writer: the FTS5 extension and SQLite's own locking
	// are not safe under concurrent writers on one file handle (§5).
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, engineerr.Wrap("store.Open", engineerr.Store, "failed to ping database", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		metrics: newMetricsRing(1000),
		health:  newHealthState(),
	}
	return s, nil
}

// InitSchema applies CoreSchema and FTSSchema inside one transaction,
// idempotently. Re-running must not duplicate rows, triggers, or indices.
func (s *Store) InitSchema() error {
	s.mu.Lock()
	if s.initializationInProgress {
		s.mu.Unlock()
		return engineerr.New("store.InitSchema", engineerr.Store, "initialization already in progress")
	}
	s.initializationInProgress = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.initializationInProgress = false
		s.mu.Unlock()
	}()

	tx, err := s.db.Begin()
	if err != nil {
		return engineerr.Wrap("store.InitSchema", engineerr.Store, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return engineerr.Wrap("store.InitSchema", engineerr.Store, "failed to apply core schema", err)
	}
	if _, err := tx.Exec(FTSSchema); err != nil {
		return engineerr.Wrap("store.InitSchema", engineerr.Store, "failed to apply FTS schema", err)
	}

	var version int
	row := tx.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1")
	if err := row.Scan(&version); err != nil {
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return engineerr.Wrap("store.InitSchema", engineerr.Store, "failed to record schema version", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return engineerr.Wrap("store.InitSchema", engineerr.Store, "failed to commit schema", err)
	}
	log.Info("schema initialized", "path", s.path, "version", SchemaVersion)
	return nil
}

// DB returns the underlying *sql.DB for packages that need raw access
// (search strategies issuing FTS queries, the FTS index manager).
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close stops accepting new work and closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.isShuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	s.mu.Unlock()
	return s.db.Close()
}

// IsShuttingDown reports whether Close has been called, letting background
// schedulers in other components bail out of in-flight ticks cleanly.
func (s *Store) IsShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isShuttingDown
}

// WithTx executes f atomically: an error from f rolls back the transaction
// and is returned unchanged; begin and commit failures are reported as STORE
// errors; success commits.
func (s *Store) WithTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.recordOp("tx", "", start, false, err)
		return engineerr.Wrap("store.WithTx", engineerr.Store, "failed to begin transaction", err)
	}

	if err := f(tx); err != nil {
		tx.Rollback()
		s.recordOp("tx", "", start, false, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.recordOp("tx", "", start, false, err)
		return engineerr.Wrap("store.WithTx", engineerr.Store, "failed to commit transaction", err)
	}
	s.recordOp("tx", "", start, true, nil)
	return nil
}

// TryOptimizeLock attempts to acquire the maintenance gate; it returns false
// if a maintenance operation is already running (OPTIMIZATION_BUSY).
func (s *Store) TryOptimizeLock() bool {
	s.optimizeMu.Lock()
	defer s.optimizeMu.Unlock()
	if s.isOptimizing {
		return false
	}
	s.isOptimizing = true
	return true
}

// ReleaseOptimizeLock releases the maintenance gate.
func (s *Store) ReleaseOptimizeLock() {
	s.optimizeMu.Lock()
	defer s.optimizeMu.Unlock()
	s.isOptimizing = false
}

// TableExists reports whether a table (or virtual table) of the given name
// exists.
func (s *Store) TableExists(name string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table') AND name = ?", name).Scan(&n)
	if err != nil {
		return false, engineerr.Wrap("store.TableExists", engineerr.Store, "query failed", err)
	}
	return n > 0, nil
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(table string) (int, error) {
	var n int
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, engineerr.Wrap("store.CountRows", engineerr.Store, "count failed", err)
	}
	return n, nil
}

// Vacuum reclaims free pages.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	if err != nil {
		return engineerr.Wrap("store.Vacuum", engineerr.Store, "vacuum failed", err)
	}
	return nil
}

// Checkpoint forces a WAL checkpoint.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return engineerr.Wrap("store.Checkpoint", engineerr.Store, "checkpoint failed", err)
	}
	return nil
}
