package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// VectorRecord holds the embedding for an object.
type VectorRecord struct {
	ObjectID  string
	Embedding []float64
	Model     string
	Dimension int
	CreatedAt string
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for an object.
func (db *DB) SaveVector(objectID string, embedding []float64, model string) error {
	now := nowISO()
	blob := encodeEmbedding(embedding)

	_, err := db.Exec(`
		INSERT INTO vectors (object_id, embedding, model, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET embedding = ?, model = ?, dimension = ?, created_at = ?
	`, objectID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for an object, or nil if not found.
func (db *DB) GetVector(objectID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRow(`
		SELECT object_id, embedding, model, dimension, created_at
		FROM vectors WHERE object_id = ?
	`, objectID).Scan(&v.ObjectID, &blob, &v.Model, &v.Dimension, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// Candidate is a vector joined with its object's type and age, used by
// relation inference to rank same-type peers.
type Candidate struct {
	ObjectID  string
	Type      string
	CreatedAt string
	Embedding []float64
}

// CandidateVectors returns the vectors of the most recently created objects
// whose type is in objectTypes, excluding excludeID. The scan is bounded by
// limit; relation inference over the result is O(n) per admission.
func (db *DB) CandidateVectors(objectTypes []string, excludeID string, limit int) ([]Candidate, error) {
	if len(objectTypes) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}

	placeholders := strings.Repeat("?,", len(objectTypes))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(objectTypes)+2)
	for _, t := range objectTypes {
		args = append(args, t)
	}
	args = append(args, excludeID, limit)

	query := fmt.Sprintf(`
		SELECT o.id, o.object_type, o.created_at, v.embedding
		FROM vectors v
		JOIN objects o ON o.id = v.object_id
		WHERE o.object_type IN (%s) AND o.id != ?
		ORDER BY o.created_at DESC, o.rowid DESC
		LIMIT ?
	`, placeholders)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate vectors: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var blob []byte
		if err := rows.Scan(&c.ObjectID, &c.Type, &c.CreatedAt, &blob); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Embedding = decodeEmbedding(blob)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
