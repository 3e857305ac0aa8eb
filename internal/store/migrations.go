package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "objects + vectors: symbolic data and embeddings",
		SQL: `
CREATE TABLE objects (
    id          TEXT PRIMARY KEY,
    object_type TEXT NOT NULL,
    data        TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX idx_objects_type    ON objects(object_type);
CREATE INDEX idx_objects_created ON objects(created_at DESC);

CREATE TABLE vectors (
    object_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimension  INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (object_id) REFERENCES objects(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     2,
		Description: "governance metadata + semantic relations",
		SQL: `
CREATE TABLE governance (
    object_id       TEXT PRIMARY KEY,
    coherence_score REAL NOT NULL,
    trust_score     REAL NOT NULL,
    validated       INTEGER NOT NULL DEFAULT 0,
    decision        TEXT NOT NULL CHECK (decision IN ('allow', 'flag')),
    validated_at    TEXT NOT NULL,
    FOREIGN KEY (object_id) REFERENCES objects(id)
);

CREATE TABLE relations (
    id               TEXT PRIMARY KEY,
    source_id        TEXT NOT NULL,
    target_id        TEXT NOT NULL,
    relation_type    TEXT NOT NULL,
    similarity_score REAL NOT NULL,
    created_at       TEXT NOT NULL,
    UNIQUE (source_id, target_id, relation_type),
    FOREIGN KEY (source_id) REFERENCES objects(id),
    FOREIGN KEY (target_id) REFERENCES objects(id)
);

CREATE INDEX idx_relations_source ON relations(source_id);
CREATE INDEX idx_relations_target ON relations(target_id);
`,
	},
	{
		Version:     3,
		Description: "provenance ledger + temporal events (append-only)",
		SQL: `
CREATE TABLE provenance (
    id        TEXT PRIMARY KEY,
    object_id TEXT NOT NULL,
    action    TEXT NOT NULL,
    actor     TEXT,
    metadata  TEXT NOT NULL DEFAULT '{}',
    timestamp TEXT NOT NULL
);

CREATE INDEX idx_provenance_object ON provenance(object_id);
CREATE INDEX idx_provenance_action ON provenance(action);
CREATE INDEX idx_provenance_time   ON provenance(timestamp DESC);

CREATE TABLE temporal_events (
    id              INTEGER PRIMARY KEY,
    object_id       TEXT NOT NULL,
    timestamp       TEXT NOT NULL,
    event_type      TEXT NOT NULL CHECK (event_type IN ('baseline', 'update', 'validation', 'drift_detected')),
    vector          BLOB,
    coherence_score REAL NOT NULL,
    trust_score     REAL NOT NULL,
    metadata        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX idx_temporal_object_time ON temporal_events(object_id, timestamp);
CREATE INDEX idx_temporal_type        ON temporal_events(event_type);
`,
	},
	{
		Version:     4,
		Description: "jobs: persisted admission task records",
		SQL: `
CREATE TABLE jobs (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    object_id  TEXT,
    status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed', 'failed')),
    error      TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX idx_jobs_status ON jobs(status);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
