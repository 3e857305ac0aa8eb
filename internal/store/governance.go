package store

import (
	"database/sql"
	"fmt"
)

// GovernanceRecord is the current governance metadata for an object.
// One row per object; each admission cycle overwrites it. Decision history
// lives in the provenance ledger, not here. Denied objects never get a row.
type GovernanceRecord struct {
	ObjectID    string  `json:"object_id"`
	Coherence   float64 `json:"coherence_score"`
	Trust       float64 `json:"trust_score"`
	Validated   bool    `json:"validated"`
	Decision    string  `json:"decision"`
	ValidatedAt string  `json:"validated_at"`
}

// SaveGovernance writes or overwrites the governance metadata for an object.
func (db *DB) SaveGovernance(objectID string, coherence, trust float64, validated bool, decision string) error {
	validatedInt := 0
	if validated {
		validatedInt = 1
	}
	now := nowISO()

	_, err := db.Exec(`
		INSERT INTO governance (object_id, coherence_score, trust_score, validated, decision, validated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			coherence_score = ?, trust_score = ?, validated = ?, decision = ?, validated_at = ?
	`, objectID, coherence, trust, validatedInt, decision, now,
		coherence, trust, validatedInt, decision, now)
	if err != nil {
		return fmt.Errorf("save governance: %w", err)
	}
	return nil
}

// GetGovernance returns the governance metadata for an object, or nil if the
// object has never been admitted (including denied objects).
func (db *DB) GetGovernance(objectID string) (*GovernanceRecord, error) {
	var g GovernanceRecord
	var validated int
	err := db.QueryRow(`
		SELECT object_id, coherence_score, trust_score, validated, decision, validated_at
		FROM governance WHERE object_id = ?
	`, objectID).Scan(&g.ObjectID, &g.Coherence, &g.Trust, &validated, &g.Decision, &g.ValidatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get governance: %w", err)
	}
	g.Validated = validated != 0
	return &g, nil
}
