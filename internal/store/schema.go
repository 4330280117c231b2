package store

// SchemaVersion is bumped whenever CoreSchema or FTSSchema changes shape.
const SchemaVersion = 1

// CoreSchema creates the relational tables backing MemoryRecord, its
// namespace scoping, state history, consolidation audit trail, and op
// metrics. It is safe to run repeatedly: every statement is idempotent.
const CoreSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_history (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	chat_id TEXT,
	user_input TEXT NOT NULL,
	ai_output TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chat_history_namespace ON chat_history(namespace, created_at DESC);

CREATE TABLE IF NOT EXISTS short_term_memory (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	chat_id TEXT,
	content TEXT NOT NULL,
	summary TEXT,
	classification TEXT NOT NULL,
	importance TEXT NOT NULL,
	importance_score REAL NOT NULL,
	topic TEXT,
	entities_json TEXT NOT NULL DEFAULT '[]',
	keywords_json TEXT NOT NULL DEFAULT '[]',
	confidence_score REAL NOT NULL DEFAULT 0,
	classification_reason TEXT,
	relationships_json TEXT NOT NULL DEFAULT '[]',
	supersedes_json TEXT NOT NULL DEFAULT '[]',
	conscious_processed INTEGER NOT NULL DEFAULT 0,
	consolidation_json TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	extraction_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_short_term_namespace ON short_term_memory(namespace, created_at DESC);

CREATE TABLE IF NOT EXISTS long_term_memory (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	chat_id TEXT,
	content TEXT NOT NULL,
	summary TEXT,
	classification TEXT NOT NULL,
	importance TEXT NOT NULL,
	importance_score REAL NOT NULL,
	topic TEXT,
	entities_json TEXT NOT NULL DEFAULT '[]',
	keywords_json TEXT NOT NULL DEFAULT '[]',
	confidence_score REAL NOT NULL DEFAULT 0,
	classification_reason TEXT,
	relationships_json TEXT NOT NULL DEFAULT '[]',
	supersedes_json TEXT NOT NULL DEFAULT '[]',
	conscious_processed INTEGER NOT NULL DEFAULT 0,
	consolidation_json TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	extraction_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_long_term_namespace ON long_term_memory(namespace, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_long_term_importance ON long_term_memory(namespace, importance_score DESC);
CREATE INDEX IF NOT EXISTS idx_long_term_classification ON long_term_memory(namespace, classification);

CREATE TABLE IF NOT EXISTS state_transitions (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	reason TEXT,
	metadata_json TEXT,
	agent_id TEXT,
	error_message TEXT,
	processing_time_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_state_transitions_memory ON state_transitions(memory_id, timestamp);

CREATE TABLE IF NOT EXISTS consolidation_audit (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('primary', 'duplicate')),
	consolidated_at DATETIME,
	consolidated_from_json TEXT,
	consolidation_reason TEXT,
	original_importance TEXT,
	original_classification TEXT,
	duplicate_count INTEGER,
	data_integrity_hash TEXT,
	rollback_token TEXT,
	snapshot_json TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_consolidation_audit_memory ON consolidation_audit(memory_id);

CREATE TABLE IF NOT EXISTS search_index_backups (
	id TEXT PRIMARY KEY,
	namespace TEXT,
	row_count INTEGER NOT NULL,
	checksum INTEGER NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS op_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op_type TEXT NOT NULL,
	table_name TEXT,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_op_metrics_started ON op_metrics(started_at DESC);
`

// FTSSchema creates the memory_fts virtual table and the triggers that keep
// it in lock-step with short_term_memory and long_term_memory (§4.1).
// metadata_json on each FTS row mirrors {memory_type, category_primary,
// importance_score, classification, created_at, namespace} per §4.1.
const FTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
	content,
	metadata_json UNINDEXED,
	tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS trg_ltm_ai AFTER INSERT ON long_term_memory
WHEN NEW.content IS NOT NULL AND NEW.content != ''
BEGIN
	INSERT INTO memory_fts(rowid, content, metadata_json)
	VALUES (
		NEW.rowid,
		NEW.content,
		json_object(
			'memory_type', 'long_term',
			'category_primary', NEW.classification,
			'importance_score', NEW.importance_score,
			'classification', NEW.classification,
			'created_at', NEW.created_at,
			'namespace', NEW.namespace,
			'id', NEW.id
		)
	);
END;

CREATE TRIGGER IF NOT EXISTS trg_ltm_au AFTER UPDATE ON long_term_memory
BEGIN
	DELETE FROM memory_fts WHERE rowid = OLD.rowid;
	INSERT INTO memory_fts(rowid, content, metadata_json)
	SELECT NEW.rowid, NEW.content,
		json_object(
			'memory_type', 'long_term',
			'category_primary', NEW.classification,
			'importance_score', NEW.importance_score,
			'classification', NEW.classification,
			'created_at', NEW.created_at,
			'namespace', NEW.namespace,
			'id', NEW.id
		)
	WHERE NEW.content IS NOT NULL AND NEW.content != '';
END;

CREATE TRIGGER IF NOT EXISTS trg_ltm_ad AFTER DELETE ON long_term_memory
BEGIN
	DELETE FROM memory_fts WHERE rowid = OLD.rowid;
END;

CREATE TRIGGER IF NOT EXISTS trg_stm_ai AFTER INSERT ON short_term_memory
WHEN NEW.content IS NOT NULL AND NEW.content != ''
BEGIN
	INSERT INTO memory_fts(rowid, content, metadata_json)
	VALUES (
		NEW.rowid + 1000000000,
		NEW.content,
		json_object(
			'memory_type', 'short_term',
			'category_primary', NEW.classification,
			'importance_score', NEW.importance_score,
			'classification', NEW.classification,
			'created_at', NEW.created_at,
			'namespace', NEW.namespace,
			'id', NEW.id
		)
	);
END;

CREATE TRIGGER IF NOT EXISTS trg_stm_au AFTER UPDATE ON short_term_memory
BEGIN
	DELETE FROM memory_fts WHERE rowid = OLD.rowid + 1000000000;
	INSERT INTO memory_fts(rowid, content, metadata_json)
	SELECT NEW.rowid + 1000000000, NEW.content,
		json_object(
			'memory_type', 'short_term',
			'category_primary', NEW.classification,
			'importance_score', NEW.importance_score,
			'classification', NEW.classification,
			'created_at', NEW.created_at,
			'namespace', NEW.namespace,
			'id', NEW.id
		)
	WHERE NEW.content IS NOT NULL AND NEW.content != '';
END;

CREATE TRIGGER IF NOT EXISTS trg_stm_ad AFTER DELETE ON short_term_memory
BEGIN
	DELETE FROM memory_fts WHERE rowid = OLD.rowid + 1000000000;
END;
`

// Classifications enumerates MemoryRecord.Classification per §3.
var Classifications = []string{
	"ESSENTIAL", "CONTEXTUAL", "CONVERSATIONAL", "REFERENCE", "PERSONAL", "CONSCIOUS_INFO",
}

// IsValidClassification reports whether c is a recognized classification.
func IsValidClassification(c string) bool {
	for _, v := range Classifications {
		if v == c {
			return true
		}
	}
	return false
}

// ImportanceScores maps MemoryRecord.Importance to its fixed numeric score
// per §3.
var ImportanceScores = map[string]float64{
	"CRITICAL": 0.9,
	"HIGH":     0.7,
	"MEDIUM":   0.5,
	"LOW":      0.3,
}

// IsValidImportance reports whether i is a recognized importance level.
func IsValidImportance(i string) bool {
	_, ok := ImportanceScores[i]
	return ok
}

// RelationshipTypes enumerates Relationship.Type per §3.
var RelationshipTypes = []string{
	"CONTINUATION", "REFERENCE", "RELATED", "SUPERSEDES", "CONTRADICTION",
}

// IsValidRelationshipType reports whether t is a recognized relationship type.
func IsValidRelationshipType(t string) bool {
	for _, v := range RelationshipTypes {
		if v == t {
			return true
		}
	}
	return false
}
