package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors checked with errors.Is at the server/CLI boundary.
var (
	// ErrEmbeddingUnavailable means the embedding provider failed or is not
	// configured. The object row may already exist when this is returned;
	// the provenance ledger records the failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrNotFound means the object id is unknown.
	ErrNotFound = errors.New("object not found")
)

// ValidationError reports every field error from schema validation.
// Returned before any side effect occurs.
type ValidationError struct {
	ObjectType string
	Errors     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.ObjectType, strings.Join(e.Errors, "; "))
}

// DeniedError is the expected business outcome for an object that fails
// governance. It is returned only after the denial has been written to the
// provenance ledger, so a denial is always explainable from the ledger alone.
type DeniedError struct {
	ObjectID  string
	Rationale string
	Coherence float64
	Trust     float64
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("governance denied object %s: %s", e.ObjectID, e.Rationale)
}
