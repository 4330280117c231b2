package consolidation

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/logging"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

var log = logging.GetLogger("consolidation")

// Service is the Consolidation Engine. It owns no mutable state itself; the
// atomic multi-row writes it performs go through store.WithTx.
type Service struct {
	st *store.Store
	sm *statemachine.Manager
}

// New builds a Service bound to st and sm. sm may be nil, in which case
// Consolidate skips the state-transition chain (state tracking is a side
// effect per §7, never a precondition for the primary write).
func New(st *store.Store, sm *statemachine.Manager) *Service {
	return &Service{st: st, sm: sm}
}

type recordSnapshot struct {
	ID          string
	HadRow      bool
	Consolidation sql.NullString
}

type snapshot struct {
	Primary    recordSnapshot
	Duplicates []recordSnapshot
}

func readRawConsolidation(ctx context.Context, db *sql.DB, table, id, namespace string) (recordSnapshot, error) {
	var raw sql.NullString
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT consolidation_json FROM %s WHERE id=? AND namespace=?`, table), id, namespace)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return recordSnapshot{ID: id}, nil
		}
		return recordSnapshot{}, err
	}
	return recordSnapshot{ID: id, HadRow: true, Consolidation: raw}, nil
}

// canonicalHash is a deterministic 16-hex-char function of the primary and
// duplicate ids and contents, used as ConsolidationMeta.OriginalDataHash.
func canonicalHash(primary *store.MemoryRecord, dups []*store.MemoryRecord) string {
	type entry struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	entries := make([]entry, 0, len(dups)+1)
	entries = append(entries, entry{ID: primary.ID, Content: primary.Content})
	for _, d := range dups {
		entries = append(entries, entry{ID: d.ID, Content: d.Content})
	}
	sort.Slice(entries[1:], func(i, j int) bool { return entries[1:][i].ID < entries[1:][j].ID })

	b, _ := json.Marshal(entries)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// consolidationChain is the intermediate hop sequence Consolidate drives a
// primary record through after a PROCESSED (or CONSCIOUS_PROCESSED) record
// enters the duplicate-check path, per the VALID_TRANSITIONS table in
// internal/statemachine.
var consolidationChain = []string{
	statemachine.DuplicateCheckPending,
	statemachine.DuplicateCheckProcessing,
	statemachine.ConsolidationPending,
	statemachine.ConsolidationProcessing,
	statemachine.Consolidated,
}

// Consolidate merges dupIDs into primaryID atomically: the primary's
// consolidation metadata (with a deterministic hash) and every duplicate's
// {isDuplicate, duplicateOf, consolidatedAt, rollbackToken} are written in
// one transaction, alongside an audit trail row carrying a restore snapshot.
func (s *Service) Consolidate(ctx context.Context, table, namespace, primaryID string, dupIDs []string) (*ConsolidationResult, error) {
	elig := s.ValidateEligibility(primaryID, dupIDs)
	if !elig.IsValid {
		return nil, engineerr.New("consolidation.Consolidate", engineerr.Validation, fmt.Sprintf("ineligible: %v", elig.Errors))
	}

	primary, err := s.st.GetMemory(ctx, table, primaryID, namespace)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, engineerr.New("consolidation.Consolidate", engineerr.NotFound, "no primary record "+primaryID)
	}

	dups := make([]*store.MemoryRecord, 0, len(dupIDs))
	for _, id := range dupIDs {
		d, err := s.st.GetMemory(ctx, table, id, namespace)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, engineerr.New("consolidation.Consolidate", engineerr.NotFound, "no duplicate record "+id)
		}
		dups = append(dups, d)
	}

	snap := snapshot{}
	if snap.Primary, err = readRawConsolidation(ctx, s.st.DB(), table, primaryID, namespace); err != nil {
		return nil, engineerr.Wrap("consolidation.Consolidate", engineerr.Store, "snapshot primary failed", err)
	}
	for _, id := range dupIDs {
		rs, err := readRawConsolidation(ctx, s.st.DB(), table, id, namespace)
		if err != nil {
			return nil, engineerr.Wrap("consolidation.Consolidate", engineerr.Store, "snapshot duplicate failed", err)
		}
		snap.Duplicates = append(snap.Duplicates, rs)
	}
	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, engineerr.Wrap("consolidation.Consolidate", engineerr.Store, "marshal snapshot failed", err)
	}

	hash := canonicalHash(primary, dups)
	rollbackToken := uuid.NewString()
	now := time.Now().UTC()

	err = s.st.WithTx(ctx, func(tx *sql.Tx) error {
		primaryMeta := &store.ConsolidationMeta{
			IsConsolidated:      true,
			ConsolidatedFrom:    dupIDs,
			ConsolidatedAt:      &now,
			ConsolidationReason: "duplicate_merge",
			OriginalDataHash:    hash,
			RollbackToken:       rollbackToken,
		}
		primaryJSON, _ := json.Marshal(primaryMeta)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET consolidation_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
			string(primaryJSON), now, primaryID, namespace); err != nil {
			return err
		}

		for _, d := range dups {
			dupMeta := &store.ConsolidationMeta{
				IsDuplicate:      true,
				DuplicateOf:      primaryID,
				ConsolidatedAt:   &now,
				ConsolidationReason: "duplicate_merge",
				RollbackToken:    rollbackToken,
			}
			dupJSON, _ := json.Marshal(dupMeta)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET consolidation_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
				string(dupJSON), now, d.ID, namespace); err != nil {
				return err
			}
		}

		fromJSON, _ := json.Marshal(dupIDs)
		if _, err := tx.ExecContext(ctx, `INSERT INTO consolidation_audit
			(id, memory_id, role, consolidated_at, consolidated_from_json, consolidation_reason, duplicate_count, data_integrity_hash, rollback_token, snapshot_json)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			uuid.NewString(), primaryID, "primary", now, string(fromJSON), "duplicate_merge", len(dups), hash, rollbackToken, string(snapshotJSON)); err != nil {
			return err
		}
		for _, d := range dups {
			if _, err := tx.ExecContext(ctx, `INSERT INTO consolidation_audit
				(id, memory_id, role, consolidated_at, rollback_token) VALUES (?,?,?,?,?)`,
				uuid.NewString(), d.ID, "duplicate", now, rollbackToken); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, engineerr.Wrap("consolidation.Consolidate", engineerr.Store, "consolidation transaction failed", err)
	}

	s.driveStateChain(ctx, primaryID)

	return &ConsolidationResult{Success: true, PrimaryID: primaryID, ConsolidatedCount: len(dups), Hash: hash}, nil
}

// driveStateChain walks the primary through consolidationChain. Failures
// here are logged, never returned: the write above already committed and
// is the operation's primary result (§7 propagation policy).
func (s *Service) driveStateChain(ctx context.Context, primaryID string) {
	if s.sm == nil {
		return
	}
	if s.sm.Current(primaryID) == "" {
		s.sm.Initialize(primaryID, statemachine.Processed)
	}
	for _, next := range consolidationChain {
		if err := s.sm.Transition(ctx, primaryID, next, statemachine.TransitionOptions{Reason: "consolidation"}); err != nil {
			log.Warn("consolidation state transition failed, primary write stands", "memory_id", primaryID, "target", next, "error", err)
			return
		}
	}
}

// PreviewConsolidation computes what Consolidate would do without mutating
// the store: the estimated hash and the mean confidence across dupIDs
// against the primary's content.
func (s *Service) PreviewConsolidation(ctx context.Context, table, namespace, primaryID string, dupIDs []string) (*PreviewResult, error) {
	primary, err := s.st.GetMemory(ctx, table, primaryID, namespace)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, engineerr.New("consolidation.PreviewConsolidation", engineerr.NotFound, "no primary record "+primaryID)
	}

	dups := make([]*store.MemoryRecord, 0, len(dupIDs))
	var totalConfidence float64
	for _, id := range dupIDs {
		d, err := s.st.GetMemory(ctx, table, id, namespace)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, engineerr.New("consolidation.PreviewConsolidation", engineerr.NotFound, "no duplicate record "+id)
		}
		dups = append(dups, d)
		sim := jaccard(tokenize(primary.Content), tokenize(d.Content))
		totalConfidence += confidence(sim, len(primary.Content), len(d.Content))
	}
	if len(dups) > 0 {
		totalConfidence /= float64(len(dups))
	}

	return &PreviewResult{
		PrimaryID:           primaryID,
		DupIDs:              dupIDs,
		EstimatedHash:       canonicalHash(primary, dups),
		EstimatedConfidence: clamp01(totalConfidence),
	}, nil
}

// Rollback restores the pre-consolidation snapshot identified by token,
// atomically, and verifies the §8 postconditions before returning success.
func (s *Service) Rollback(ctx context.Context, table, namespace, primaryID, token string) (*RollbackResult, error) {
	if token == "" {
		return nil, engineerr.New("consolidation.Rollback", engineerr.Validation, "rollback token is required")
	}

	var rawSnapshot sql.NullString
	row := s.st.DB().QueryRowContext(ctx,
		`SELECT snapshot_json FROM consolidation_audit WHERE memory_id=? AND role='primary' AND rollback_token=? ORDER BY created_at DESC LIMIT 1`,
		primaryID, token)
	if err := row.Scan(&rawSnapshot); err != nil {
		if err == sql.ErrNoRows {
			return nil, engineerr.New("consolidation.Rollback", engineerr.NotFound, "no consolidation audit entry for token")
		}
		return nil, engineerr.Wrap("consolidation.Rollback", engineerr.Store, "lookup failed", err)
	}
	if !rawSnapshot.Valid {
		return nil, engineerr.New("consolidation.Rollback", engineerr.Validation, "audit entry has no restorable snapshot")
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(rawSnapshot.String), &snap); err != nil {
		return nil, engineerr.Wrap("consolidation.Rollback", engineerr.Validation, "snapshot unreadable", err)
	}

	result := &RollbackResult{}
	err := s.st.WithTx(ctx, func(tx *sql.Tx) error {
		if snap.Primary.HadRow {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET consolidation_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
				snap.Primary.Consolidation, time.Now().UTC(), primaryID, namespace); err != nil {
				return err
			}
		}
		for _, d := range snap.Duplicates {
			if !d.HadRow {
				continue
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET consolidation_json=?, updated_at=? WHERE id=? AND namespace=?`, table),
				d.Consolidation, time.Now().UTC(), d.ID, namespace); err != nil {
				return err
			}
			result.Restored++
		}
		return nil
	})
	if err != nil {
		return nil, engineerr.Wrap("consolidation.Rollback", engineerr.Store, "rollback transaction failed", err)
	}

	primary, err := s.st.GetMemory(ctx, table, primaryID, namespace)
	if err != nil {
		return nil, err
	}
	if primary != nil && primary.Consolidation != nil && primary.Consolidation.IsConsolidated {
		result.Errors = append(result.Errors, "primary still reports isConsolidated after rollback")
		return result, engineerr.New("consolidation.Rollback", engineerr.Store, "rollback postcondition failed for primary")
	}
	for _, d := range snap.Duplicates {
		dr, err := s.st.GetMemory(ctx, table, d.ID, namespace)
		if err != nil {
			return nil, err
		}
		if dr != nil && dr.Consolidation != nil && dr.Consolidation.IsDuplicate {
			result.Errors = append(result.Errors, "duplicate "+d.ID+" still reports isDuplicate after rollback")
			return result, engineerr.New("consolidation.Rollback", engineerr.Store, "rollback postcondition failed for duplicate "+d.ID)
		}
	}

	result.Success = true
	return result, nil
}

// CleanupOld deletes duplicates that were consolidated more than days ago.
// With dryRun set, matching records are counted as Skipped instead of
// deleted.
func (s *Service) CleanupOld(ctx context.Context, table, namespace string, days int, dryRun bool) (*CleanupResult, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	records, err := s.st.ListMemories(ctx, table, store.ListFilters{Namespace: namespace, Limit: 1000})
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	for _, r := range records {
		if r.Consolidation == nil || !r.Consolidation.IsDuplicate || r.Consolidation.ConsolidatedAt == nil {
			continue
		}
		if r.Consolidation.ConsolidatedAt.After(cutoff) {
			continue
		}
		if dryRun {
			result.Skipped++
			continue
		}
		ok, err := s.st.DeleteMemory(ctx, table, r.ID, namespace)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if ok {
			result.Cleaned++
		}
	}
	return result, nil
}

// Analytics summarizes the consolidation audit trail into a health
// snapshot the scheduler consults before running (§4.7: skip when
// overallHealth == "poor").
func (s *Service) Analytics(ctx context.Context, table, namespace string) (*Stats, error) {
	var totalMemories int
	if err := s.st.DB().QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace=?`, table), namespace).Scan(&totalMemories); err != nil {
		return nil, engineerr.Wrap("consolidation.Analytics", engineerr.Store, "count memories failed", err)
	}

	var totalConsolidations, totalDuplicates int
	if err := s.st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM consolidation_audit WHERE role='primary'`).Scan(&totalConsolidations); err != nil {
		return nil, engineerr.Wrap("consolidation.Analytics", engineerr.Store, "count consolidations failed", err)
	}
	if err := s.st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM consolidation_audit WHERE role='duplicate'`).Scan(&totalDuplicates); err != nil {
		return nil, engineerr.Wrap("consolidation.Analytics", engineerr.Store, "count duplicates failed", err)
	}

	var lastAt sql.NullTime
	_ = s.st.DB().QueryRowContext(ctx, `SELECT MAX(consolidated_at) FROM consolidation_audit WHERE role='primary'`).Scan(&lastAt)

	ratio := 0.0
	if totalMemories > 0 {
		ratio = float64(totalDuplicates) / float64(totalMemories)
	}

	health := "excellent"
	switch {
	case ratio > 0.5:
		health = "poor"
	case ratio > 0.3:
		health = "fair"
	case ratio > 0.1:
		health = "good"
	}

	stats := &Stats{
		TotalMemories:         totalMemories,
		TotalConsolidations:   totalConsolidations,
		TotalDuplicatesMerged: totalDuplicates,
		ConsolidationRatio:    ratio,
		OverallHealth:         health,
	}
	if lastAt.Valid {
		stats.LastConsolidationAt = &lastAt.Time
	}
	return stats, nil
}
