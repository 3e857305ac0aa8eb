package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Relation links two semantically similar objects. Stored once, directed
// (source = the object whose admission created it), with a uniqueness
// constraint on (source, target, type). Reads query both directions so the
// relation is visible from either side.
type Relation struct {
	ID         string  `json:"id"`
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"relation_type"`
	Similarity float64 `json:"similarity_score"`
	CreatedAt  string  `json:"created_at"`
}

// SaveRelation persists a relation. A duplicate (source, target, type) row
// is silently ignored; relations are never deleted.
func (db *DB) SaveRelation(sourceID, targetID, relationType string, similarity float64) (string, error) {
	relationID := uuid.NewString()
	now := nowISO()

	_, err := db.Exec(`
		INSERT OR IGNORE INTO relations (id, source_id, target_id, relation_type, similarity_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, relationID, sourceID, targetID, relationType, similarity, now)
	if err != nil {
		return "", fmt.Errorf("save relation: %w", err)
	}
	return relationID, nil
}

// GetRelations returns relations touching an object, strongest first.
// Ties break toward the older relation.
func (db *DB) GetRelations(objectID string, limit int) ([]Relation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT id, source_id, target_id, relation_type, similarity_score, created_at
		FROM relations
		WHERE source_id = ? OR target_id = ?
		ORDER BY similarity_score DESC, created_at ASC
		LIMIT ?
	`, objectID, objectID, limit)
	if err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}
	defer rows.Close()

	var relations []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Similarity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
