// Package engine implements the admission pipeline: schema validation,
// embedding, governance scoring, relation inference, temporal baselining,
// and the provenance ledger writes that make every decision auditable.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aegis-kb/aegis/internal/schema"
	"github.com/aegis-kb/aegis/internal/store"
)

// Engine orchestrates admission and reasoning over governed objects.
type Engine struct {
	DB       *store.DB
	Ontology *schema.Ontology
	Governor *Governor
	Tracker  *Tracker
	Embedder Embedder

	// TopK caps persisted relations per admission and default similarity
	// results. CandidateLimit bounds the relation-inference scan.
	TopK           int
	CandidateLimit int
	// RelationLimit caps relations shown in a composed view.
	RelationLimit int
}

// New creates an Engine with default limits. The embedder starts nil; call
// SetEmbedder once a provider has been probed.
func New(db *store.DB, ontology *schema.Ontology, governor *Governor, tracker *Tracker) *Engine {
	return &Engine{
		DB:             db,
		Ontology:       ontology,
		Governor:       governor,
		Tracker:        tracker,
		TopK:           5,
		CandidateLimit: 200,
		RelationLimit:  10,
	}
}

// SetEmbedder sets the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// Admit runs the full admission pipeline for one candidate object:
//
//	validate -> persist -> embed -> evaluate -> relate -> baseline
//
// Validation failures have no side effects. After validation, every outcome
// leaves a provenance trail: denial writes a denied event and returns
// *DeniedError; embedding failure writes an embedding_failed event and
// returns ErrEmbeddingUnavailable (the object row remains for retry).
// On allow or flag, the composed object view is returned.
func (e *Engine) Admit(ctx context.Context, objectType string, fields map[string]any, actor string) (*GovernedObject, error) {
	normalized, errs := e.Ontology.ValidateAndNormalize(objectType, fields)
	if errs != nil {
		return nil, &ValidationError{ObjectType: objectType, Errors: errs}
	}

	job, err := e.DB.CreateJob("admit")
	if err != nil {
		return nil, fmt.Errorf("create admission job: %w", err)
	}

	objectID, err := e.DB.SaveObject(objectType, normalized, "")
	if err != nil {
		e.failJob(job.ID, "", err)
		return nil, fmt.Errorf("save object: %w", err)
	}

	vec, err := e.embed(ctx, objectType, normalized)
	if err != nil {
		if _, perr := e.DB.AppendProvenance(objectID, store.ActionEmbeddingFailed, actor, map[string]any{
			"object_type": objectType,
			"error":       err.Error(),
		}); perr != nil {
			log.Printf("admit: record embedding failure for %s: %v", objectID, perr)
		}
		e.failJob(job.ID, objectID, err)
		return nil, fmt.Errorf("embed object %s: %v: %w", objectID, err, ErrEmbeddingUnavailable)
	}
	if err := e.DB.SaveVector(objectID, vec, e.Embedder.Model()); err != nil {
		e.failJob(job.ID, objectID, err)
		return nil, fmt.Errorf("save vector: %w", err)
	}

	// New objects have no provenance history yet, so trust starts at the
	// neutral prior.
	verdict := e.Governor.Evaluate(objectType, normalized, vec, nil, time.Now().UTC())

	if verdict.Decision == DecisionDeny {
		// The denial must reach the ledger before the caller sees it.
		if _, err := e.DB.AppendProvenance(objectID, store.ActionDenied, actor, map[string]any{
			"object_type":     objectType,
			"reason":          verdict.Rationale,
			"coherence_score": verdict.Coherence,
			"trust_score":     verdict.Trust,
		}); err != nil {
			e.failJob(job.ID, objectID, err)
			return nil, fmt.Errorf("record denial for %s: %w", objectID, err)
		}
		e.failJob(job.ID, objectID, fmt.Errorf("%s", verdict.Rationale))
		return nil, &DeniedError{
			ObjectID:  objectID,
			Rationale: verdict.Rationale,
			Coherence: verdict.Coherence,
			Trust:     verdict.Trust,
		}
	}

	if err := e.DB.SaveGovernance(objectID, verdict.Coherence, verdict.Trust, verdict.Validated, verdict.Decision); err != nil {
		e.failJob(job.ID, objectID, err)
		return nil, fmt.Errorf("save governance: %w", err)
	}

	action := store.ActionIngested
	if verdict.Decision == DecisionFlag {
		action = store.ActionFlagged
	}
	if _, err := e.DB.AppendProvenance(objectID, action, actor, map[string]any{
		"object_type": objectType,
		"decision":    verdict.Decision,
		"rationale":   verdict.Rationale,
	}); err != nil {
		e.failJob(job.ID, objectID, err)
		return nil, fmt.Errorf("record admission for %s: %w", objectID, err)
	}

	if err := e.Tracker.RecordBaseline(objectID, vec, verdict.Coherence, verdict.Trust, map[string]any{
		"actor":       actor,
		"decision":    verdict.Decision,
		"object_type": objectType,
	}); err != nil {
		e.failJob(job.ID, objectID, err)
		return nil, fmt.Errorf("record baseline for %s: %w", objectID, err)
	}

	// Relation inference is best-effort: the object is already admitted, so
	// a scan failure here must not roll anything back.
	if n, err := e.inferRelations(objectID, objectType, vec); err != nil {
		log.Printf("admit: relation inference for %s: %v", objectID, err)
	} else if n > 0 {
		log.Printf("admit: object %s linked to %d related objects", objectID, n)
	}

	if err := e.DB.CompleteJob(job.ID, objectID); err != nil {
		log.Printf("admit: complete job %s: %v", job.ID, err)
	}

	return e.Reason(objectID)
}

// failJob marks the admission job failed; the job record is observability,
// so a failure to update it is logged, not returned.
func (e *Engine) failJob(jobID, objectID string, cause error) {
	if err := e.DB.FailJob(jobID, objectID, cause.Error()); err != nil {
		log.Printf("admit: fail job %s: %v", jobID, err)
	}
}

func (e *Engine) embed(ctx context.Context, objectType string, fields map[string]any) ([]float64, error) {
	if e.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return e.Embedder.Embed(ctx, textRepr(objectType, fields))
}

// textRepr builds the canonical text for embedding: the type name followed
// by scalar fields as sorted "key: value" lines. Nested values are skipped;
// key order is fixed so equal objects embed identically.
func textRepr(objectType string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "object_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(objectType)
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			fmt.Fprintf(&b, "\n%s: %s", k, v)
		case bool, int, int64, float32, float64:
			fmt.Fprintf(&b, "\n%s: %v", k, v)
		}
	}
	return b.String()
}

// GovernanceView is the governance slice of a composed object view.
type GovernanceView struct {
	CoherenceScore float64 `json:"coherence_score"`
	TrustScore     float64 `json:"trust_score"`
	Validated      bool    `json:"validated"`
	Decision       string  `json:"decision"`
	ValidatedAt    string  `json:"validated_at,omitempty"`
}

// VectorView reports embedding presence without the raw vector.
type VectorView struct {
	HasEmbedding bool   `json:"has_embedding"`
	Dimension    int    `json:"dimension,omitempty"`
	Model        string `json:"model,omitempty"`
}

// RelationView is one relation seen from the composed object's side.
type RelationView struct {
	ObjectID     string  `json:"object_id"`
	RelationType string  `json:"relation_type"`
	Similarity   float64 `json:"similarity"`
}

// GovernedObject is the composed read model: the object plus its governance
// state, vector summary, relations, and full provenance, assembled in one
// place so callers never stitch tables themselves.
type GovernedObject struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Fields     map[string]any          `json:"fields"`
	CreatedAt  string                  `json:"created_at"`
	UpdatedAt  string                  `json:"updated_at"`
	Governance GovernanceView          `json:"governance"`
	Vector     VectorView              `json:"vector"`
	Relations  []RelationView          `json:"relations"`
	Provenance []store.ProvenanceEvent `json:"provenance"`
}

// Reason composes the full governed view of one object. Read-only and
// idempotent. Objects that were stored but never admitted (embedding failed,
// or denied) appear with decision "unvalidated".
func (e *Engine) Reason(objectID string) (*GovernedObject, error) {
	obj, err := e.DB.GetObject(objectID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("object %s: %w", objectID, ErrNotFound)
	}

	view := &GovernedObject{
		ID:         obj.ID,
		Type:       obj.Type,
		Fields:     obj.Fields,
		CreatedAt:  obj.CreatedAt,
		UpdatedAt:  obj.UpdatedAt,
		Governance: GovernanceView{Decision: "unvalidated"},
		Relations:  []RelationView{},
		Provenance: []store.ProvenanceEvent{},
	}

	gov, err := e.DB.GetGovernance(objectID)
	if err != nil {
		return nil, err
	}
	if gov != nil {
		view.Governance = GovernanceView{
			CoherenceScore: gov.Coherence,
			TrustScore:     gov.Trust,
			Validated:      gov.Validated,
			Decision:       gov.Decision,
			ValidatedAt:    gov.ValidatedAt,
		}
	}

	vec, err := e.DB.GetVector(objectID)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		view.Vector = VectorView{
			HasEmbedding: true,
			Dimension:    vec.Dimension,
			Model:        vec.Model,
		}
	}

	relations, err := e.DB.GetRelations(objectID, e.RelationLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range relations {
		other := r.TargetID
		if other == objectID {
			other = r.SourceID
		}
		view.Relations = append(view.Relations, RelationView{
			ObjectID:     other,
			RelationType: r.Type,
			Similarity:   r.Similarity,
		})
	}

	events, err := e.DB.QueryProvenance(store.ProvenanceFilter{ObjectID: objectID, Limit: 1000})
	if err != nil {
		return nil, err
	}
	if events != nil {
		view.Provenance = events
	}

	return view, nil
}

// GetDrift assesses trust decay and semantic drift for one object as of now.
func (e *Engine) GetDrift(objectID string) (*DriftReport, error) {
	obj, err := e.DB.GetObject(objectID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("object %s: %w", objectID, ErrNotFound)
	}
	return e.Tracker.Drift(objectID, time.Now().UTC())
}

// Timeline returns the temporal event history for one object, oldest first.
func (e *Engine) Timeline(objectID string, limit int) ([]store.TemporalEvent, error) {
	obj, err := e.DB.GetObject(objectID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("object %s: %w", objectID, ErrNotFound)
	}
	return e.DB.GetTimeline(objectID, limit)
}
