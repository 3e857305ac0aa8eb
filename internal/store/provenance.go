package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Provenance actions written by the engine.
const (
	ActionIngested        = "ingested"
	ActionFlagged         = "flagged"
	ActionDenied          = "denied"
	ActionValidated       = "validated"
	ActionEmbeddingFailed = "embedding_failed"
)

// ProvenanceEvent is one entry in the append-only audit trail. Events are
// never updated or deleted; this table is the sole source of historical
// truth for what happened to an object.
type ProvenanceEvent struct {
	ID        string         `json:"id"`
	ObjectID  string         `json:"object_id"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp string         `json:"timestamp"`
}

// AppendProvenance writes one event to the ledger and returns its id.
func (db *DB) AppendProvenance(objectID, action, actor string, metadata map[string]any) (string, error) {
	eventID := uuid.NewString()
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal provenance metadata: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO provenance (id, object_id, action, actor, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, eventID, objectID, action, actor, string(meta), nowISO())
	if err != nil {
		return "", fmt.Errorf("append provenance: %w", err)
	}
	return eventID, nil
}

// ProvenanceFilter narrows a ledger query. Zero values are ignored.
// Since/Until are ISO-8601 timestamps, inclusive.
type ProvenanceFilter struct {
	ObjectID string
	Action   string
	Actor    string
	Since    string
	Until    string
	Limit    int
}

// QueryProvenance returns matching events, newest first. Ties between
// events with identical timestamps break by insertion order.
func (db *DB) QueryProvenance(f ProvenanceFilter) ([]ProvenanceEvent, error) {
	var conds []string
	var args []any

	if f.ObjectID != "" {
		conds = append(conds, "object_id = ?")
		args = append(args, f.ObjectID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Since != "" {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until)
	}

	query := "SELECT id, object_id, action, actor, metadata, timestamp FROM provenance"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var events []ProvenanceEvent
	for rows.Next() {
		var e ProvenanceEvent
		var actor, meta string
		if err := rows.Scan(&e.ID, &e.ObjectID, &e.Action, &actor, &meta, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan provenance event: %w", err)
		}
		e.Actor = actor
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode provenance metadata: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
