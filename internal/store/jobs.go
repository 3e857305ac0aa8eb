package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Job statuses. Transitions are pending → completed or pending → failed.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is a persisted admission task record, so in-flight state survives a
// process restart and outcomes stay queryable.
type Job struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	ObjectID  string `json:"object_id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateJob inserts a new pending job.
func (db *DB) CreateJob(kind string) (*Job, error) {
	now := nowISO()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(`
		INSERT INTO jobs (id, kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, job.Kind, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// CompleteJob marks a job completed and records the object it produced.
func (db *DB) CompleteJob(jobID, objectID string) error {
	_, err := db.Exec(`
		UPDATE jobs SET status = ?, object_id = NULLIF(?, ''), updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, JobCompleted, objectID, nowISO(), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed with an error message. The object id is kept
// when one was already created before the failure.
func (db *DB) FailJob(jobID, objectID, errMsg string) error {
	_, err := db.Exec(`
		UPDATE jobs SET status = ?, object_id = NULLIF(?, ''), error = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, JobFailed, objectID, errMsg, nowISO(), jobID)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetJob returns a job by id, or nil if not found.
func (db *DB) GetJob(jobID string) (*Job, error) {
	var j Job
	var objectID, errMsg sql.NullString
	err := db.QueryRow(`
		SELECT id, kind, object_id, status, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, jobID).Scan(&j.ID, &j.Kind, &objectID, &j.Status, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.ObjectID = objectID.String
	j.Error = errMsg.String
	return &j, nil
}
