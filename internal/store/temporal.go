package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Temporal event types.
const (
	EventBaseline      = "baseline"
	EventUpdate        = "update"
	EventValidation    = "validation"
	EventDriftDetected = "drift_detected"
)

// TemporalEvent is a snapshot of an object's semantic state at a point in
// time. Events are append-only and ordered by timestamp; the first baseline
// event is the reference point for all drift calculations.
type TemporalEvent struct {
	ID        int64          `json:"id"`
	ObjectID  string         `json:"object_id"`
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"event_type"`
	Vector    []float64      `json:"-"`
	Coherence float64        `json:"coherence_score"`
	Trust     float64        `json:"trust_score"`
	Metadata  map[string]any `json:"metadata"`
}

// AppendTemporalEvent records one event. Assigns the row id and, when the
// caller left Timestamp empty, the current time.
func (db *DB) AppendTemporalEvent(ev *TemporalEvent) error {
	if ev.Timestamp == "" {
		ev.Timestamp = nowISO()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal temporal metadata: %w", err)
	}

	var blob []byte
	if ev.Vector != nil {
		blob = encodeEmbedding(ev.Vector)
	}

	result, err := db.Exec(`
		INSERT INTO temporal_events (object_id, timestamp, event_type, vector, coherence_score, trust_score, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ObjectID, ev.Timestamp, ev.EventType, blob, ev.Coherence, ev.Trust, string(meta))
	if err != nil {
		return fmt.Errorf("append temporal event: %w", err)
	}

	id, _ := result.LastInsertId()
	ev.ID = id
	return nil
}

// GetBaselineEvent returns the first baseline event for an object, or nil.
// Ties between equal timestamps break by insertion order.
func (db *DB) GetBaselineEvent(objectID string) (*TemporalEvent, error) {
	return db.queryOneEvent(`
		SELECT id, object_id, timestamp, event_type, vector, coherence_score, trust_score, metadata
		FROM temporal_events
		WHERE object_id = ? AND event_type = 'baseline'
		ORDER BY timestamp ASC, id ASC
		LIMIT 1
	`, objectID)
}

// GetLatestEvent returns the most recent event of any type for an object,
// or nil.
func (db *DB) GetLatestEvent(objectID string) (*TemporalEvent, error) {
	return db.queryOneEvent(`
		SELECT id, object_id, timestamp, event_type, vector, coherence_score, trust_score, metadata
		FROM temporal_events
		WHERE object_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, objectID)
}

func (db *DB) queryOneEvent(query string, args ...any) (*TemporalEvent, error) {
	var ev TemporalEvent
	var blob []byte
	var meta string
	err := db.QueryRow(query, args...).Scan(
		&ev.ID, &ev.ObjectID, &ev.Timestamp, &ev.EventType, &blob, &ev.Coherence, &ev.Trust, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get temporal event: %w", err)
	}
	if len(blob) > 0 {
		ev.Vector = decodeEmbedding(blob)
	}
	if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
		return nil, fmt.Errorf("decode temporal metadata: %w", err)
	}
	return &ev, nil
}

// GetTimeline returns all events for an object in chronological order,
// capped at limit.
func (db *DB) GetTimeline(objectID string, limit int) ([]TemporalEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, object_id, timestamp, event_type, vector, coherence_score, trust_score, metadata
		FROM temporal_events
		WHERE object_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, objectID, limit)
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	defer rows.Close()

	var events []TemporalEvent
	for rows.Next() {
		var ev TemporalEvent
		var blob []byte
		var meta string
		if err := rows.Scan(&ev.ID, &ev.ObjectID, &ev.Timestamp, &ev.EventType, &blob, &ev.Coherence, &ev.Trust, &meta); err != nil {
			return nil, fmt.Errorf("scan temporal event: %w", err)
		}
		if len(blob) > 0 {
			ev.Vector = decodeEmbedding(blob)
		}
		if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decode temporal metadata: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
