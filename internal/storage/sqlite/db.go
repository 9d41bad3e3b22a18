// Package sqlite is the persistence layer: schema, stores, and the one
// transactional operation in the system (rollback).
package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"ruleloop/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS corrections (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		forwarder_id    TEXT NOT NULL,
		field_name      TEXT NOT NULL,
		original_value  TEXT NOT NULL DEFAULT '',
		corrected_value TEXT NOT NULL,
		class           TEXT NOT NULL DEFAULT 'NORMAL',
		corrected_at    DATETIME NOT NULL,
		analyzed_at     DATETIME,
		pattern_id      INTEGER,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_corrections_unanalyzed ON corrections(analyzed_at, class, corrected_at);
	CREATE INDEX IF NOT EXISTS idx_corrections_pattern ON corrections(pattern_id);

	CREATE TABLE IF NOT EXISTS patterns (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		forwarder_id     TEXT NOT NULL,
		field_name       TEXT NOT NULL,
		identity_hash    TEXT NOT NULL UNIQUE,
		original_value   TEXT NOT NULL DEFAULT '',
		corrected_value  TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'DETECTED',
		confidence       REAL NOT NULL DEFAULT 0,
		samples          TEXT NOT NULL DEFAULT '[]',
		first_seen_at    DATETIME NOT NULL,
		last_seen_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_scope ON patterns(forwarder_id, field_name);
	CREATE INDEX IF NOT EXISTS idx_patterns_status ON patterns(status, occurrence_count);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id                   TEXT PRIMARY KEY,
		started_at           DATETIME NOT NULL,
		finished_at          DATETIME,
		status               TEXT NOT NULL,
		corrections_analyzed INTEGER NOT NULL DEFAULT 0,
		patterns_created     INTEGER NOT NULL DEFAULT 0,
		patterns_updated     INTEGER NOT NULL DEFAULT 0,
		promotions           INTEGER NOT NULL DEFAULT 0,
		error_message        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at);

	CREATE TABLE IF NOT EXISTS rules (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		forwarder_id         TEXT NOT NULL,
		field_name           TEXT NOT NULL,
		name                 TEXT NOT NULL,
		status               TEXT NOT NULL DEFAULT 'active',
		current_version      INTEGER NOT NULL DEFAULT 1,
		kind                 TEXT NOT NULL,
		payload              TEXT NOT NULL,
		confidence_threshold REAL NOT NULL DEFAULT 0,
		priority             INTEGER NOT NULL DEFAULT 0,
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rules_status ON rules(status, current_version);

	CREATE TABLE IF NOT EXISTS rule_versions (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id              INTEGER NOT NULL,
		version              INTEGER NOT NULL,
		kind                 TEXT NOT NULL,
		payload              TEXT NOT NULL,
		confidence_threshold REAL NOT NULL DEFAULT 0,
		priority             INTEGER NOT NULL DEFAULT 0,
		change_reason        TEXT NOT NULL DEFAULT '',
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(rule_id, version)
	);

	CREATE TABLE IF NOT EXISTS application_records (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id         INTEGER NOT NULL,
		version         INTEGER NOT NULL,
		document_id     TEXT NOT NULL DEFAULT '',
		extracted_value TEXT NOT NULL DEFAULT '',
		accurate        INTEGER,
		verified_by     TEXT NOT NULL DEFAULT '',
		verified_at     DATETIME,
		applied_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applications_rule ON application_records(rule_id, version, applied_at);

	CREATE TABLE IF NOT EXISTS rollback_events (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id         INTEGER NOT NULL,
		from_version    INTEGER NOT NULL,
		to_version      INTEGER NOT NULL,
		trigger_kind    TEXT NOT NULL,
		reason          TEXT NOT NULL DEFAULT '',
		accuracy_before REAL,
		accuracy_after  REAL,
		metadata        TEXT NOT NULL DEFAULT '{}',
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rollbacks_rule ON rollback_events(rule_id, trigger_kind, created_at);
	`
	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// Store wraps the database with the sample-buffer capacity patterns are
// decoded with. It satisfies the store interfaces of the learning and
// accuracy engines.
type Store struct {
	db        *sql.DB
	sampleCap int
}

func NewStore(db *sql.DB, sampleCap int) *Store {
	if sampleCap < 1 {
		sampleCap = domain.DefaultSampleCap
	}
	return &Store{db: db, sampleCap: sampleCap}
}

// DB exposes the underlying handle for callers that manage their own queries.
func (s *Store) DB() *sql.DB { return s.db }
