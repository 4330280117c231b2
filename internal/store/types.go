package store

import "time"

// MemoryRecord is the unit of storage (§3). Relationships are embedded in
// two lists on the origin record rather than normalized into a join table.
type MemoryRecord struct {
	ID                   string
	Namespace            string
	ChatID               string
	Content              string
	Summary              string
	Classification       string
	Importance           string
	ImportanceScore      float64
	Topic                string
	Entities             []string
	Keywords             []string
	ConfidenceScore      float64
	ClassificationReason string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ExtractionTimestamp  time.Time

	Relationships []Relationship // type != SUPERSEDES
	Supersedes    []Relationship // type == SUPERSEDES

	ConsciousProcessed bool
	Consolidation      *ConsolidationMeta
}

// Relationship is a typed, directional link embedded on the origin record
// (§3).
type Relationship struct {
	Type           string
	TargetMemoryID string
	Confidence     float64
	Strength       float64
	Reason         string
	Context        string
	Entities       []string
}

// Key identifies a relationship for merge/idempotence purposes: two
// relationships are identical iff (Type, TargetMemoryID) match (§4.4).
func (r Relationship) Key() string { return r.Type + "|" + r.TargetMemoryID }

// ConsolidationMeta is the optional consolidation sub-record on a
// MemoryRecord (§3).
type ConsolidationMeta struct {
	IsDuplicate         bool
	DuplicateOf         string
	IsConsolidated      bool
	ConsolidatedInto    string
	ConsolidatedFrom    []string
	ConsolidatedAt      *time.Time
	ConsolidationReason string
	OriginalDataHash    string
	RollbackToken       string
}

// Table names recognized by the store contract (§6).
const (
	TableLongTerm  = "long_term_memory"
	TableShortTerm = "short_term_memory"
)
