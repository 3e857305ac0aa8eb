package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Object is a governed knowledge object: a typed, schema-validated field map.
type Object struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Fields    map[string]any `json:"fields"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// SaveObject inserts a new object, or replaces the field map of an existing
// one while preserving created_at. Pass objectID == "" to mint a new id.
// Returns the object id.
func (db *DB) SaveObject(objectType string, fields map[string]any, objectID string) (string, error) {
	if objectID == "" {
		objectID = uuid.NewString()
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal object fields: %w", err)
	}

	now := nowISO()
	_, err = db.Exec(`
		INSERT INTO objects (id, object_type, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET object_type = ?, data = ?, updated_at = ?
	`, objectID, objectType, string(data), now, now,
		objectType, string(data), now)
	if err != nil {
		return "", fmt.Errorf("save object: %w", err)
	}
	return objectID, nil
}

// GetObject returns an object by id, or nil if not found.
func (db *DB) GetObject(objectID string) (*Object, error) {
	var o Object
	var data string
	err := db.QueryRow(`
		SELECT id, object_type, data, created_at, updated_at
		FROM objects WHERE id = ?
	`, objectID).Scan(&o.ID, &o.Type, &data, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &o.Fields); err != nil {
		return nil, fmt.Errorf("decode object fields: %w", err)
	}
	return &o, nil
}

// QueryObjects returns objects, newest first, optionally filtered by type.
func (db *DB) QueryObjects(objectType string, limit int) ([]Object, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if objectType != "" {
		rows, err = db.Query(`
			SELECT id, object_type, data, created_at, updated_at
			FROM objects WHERE object_type = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`, objectType, limit)
	} else {
		rows, err = db.Query(`
			SELECT id, object_type, data, created_at, updated_at
			FROM objects
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var o Object
		var data string
		if err := rows.Scan(&o.ID, &o.Type, &data, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &o.Fields); err != nil {
			return nil, fmt.Errorf("decode object fields: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// CountObjects returns the total object count, optionally filtered by type.
func (db *DB) CountObjects(objectType string) (int, error) {
	var count int
	var err error
	if objectType != "" {
		err = db.QueryRow("SELECT COUNT(*) FROM objects WHERE object_type = ?", objectType).Scan(&count)
	} else {
		err = db.QueryRow("SELECT COUNT(*) FROM objects").Scan(&count)
	}
	return count, err
}
