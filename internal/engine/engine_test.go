package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/aegis-kb/aegis/internal/schema"
	"github.com/aegis-kb/aegis/internal/store"
)

// stubEmbedder returns canned vectors keyed by substring match on the
// embedded text, so tests can steer similarity without a real provider.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	for key, vec := range s.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float64{1, 0, 0}, nil
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func testEngine(t *testing.T, emb Embedder) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := New(db, schema.Default(), NewGovernor(nil), NewTracker(db))
	e.SetEmbedder(emb)
	return e
}

func TestAdmitFlagsNewObject(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	got, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	// A fresh object has no provenance history, so trust sits at the
	// neutral prior and the object is flagged rather than allowed.
	if got.Governance.Decision != DecisionFlag {
		t.Errorf("decision = %q, want flag", got.Governance.Decision)
	}
	if got.Governance.TrustScore != 0.5 {
		t.Errorf("trust = %v, want 0.5", got.Governance.TrustScore)
	}
	if got.Governance.Validated {
		t.Error("flagged object must not be validated")
	}
	if !got.Vector.HasEmbedding {
		t.Error("admitted object must carry an embedding")
	}

	if len(got.Provenance) != 1 || got.Provenance[0].Action != store.ActionFlagged {
		t.Errorf("provenance = %+v, want single flagged event", got.Provenance)
	}

	baseline, err := e.DB.GetBaselineEvent(got.ID)
	if err != nil {
		t.Fatalf("GetBaselineEvent: %v", err)
	}
	if baseline == nil {
		t.Fatal("admission must record a baseline temporal event")
	}
	if baseline.Trust != got.Governance.TrustScore {
		t.Errorf("baseline trust = %v, want %v", baseline.Trust, got.Governance.TrustScore)
	}
}

func TestAdmitValidationFailureHasNoSideEffects(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	_, err := e.Admit(context.Background(), "Note", map[string]any{"data": "no title"}, "tester")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if len(verr.Errors) == 0 {
		t.Error("validation error must list field errors")
	}

	count, _ := e.DB.CountObjects("")
	if count != 0 {
		t.Errorf("object count = %d, want 0 after validation failure", count)
	}
	events, _ := e.DB.QueryProvenance(store.ProvenanceFilter{})
	if len(events) != 0 {
		t.Errorf("provenance events = %d, want 0 after validation failure", len(events))
	}
}

func TestAdmitEmbeddingFailure(t *testing.T) {
	e := testEngine(t, &stubEmbedder{err: fmt.Errorf("connection refused")})

	_, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}

	// The object row survives for retry, and the ledger explains what happened.
	objects, _ := e.DB.QueryObjects("Note", 10)
	if len(objects) != 1 {
		t.Fatalf("object count = %d, want 1 (row kept for retry)", len(objects))
	}
	objectID := objects[0].ID

	events, _ := e.DB.QueryProvenance(store.ProvenanceFilter{ObjectID: objectID})
	if len(events) != 1 || events[0].Action != store.ActionEmbeddingFailed {
		t.Errorf("provenance = %+v, want single embedding_failed event", events)
	}

	gov, _ := e.DB.GetGovernance(objectID)
	if gov != nil {
		t.Error("no governance row may exist when embedding failed")
	}
}

func TestAdmitDeniedLeavesNoGovernanceRow(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})
	// Raise the flag floor above the neutral trust prior so a fresh object
	// cannot clear it and the deny branch runs end to end.
	e.Governor.FlagTrust = 0.6

	_, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")

	var derr *DeniedError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *DeniedError", err)
	}
	if derr.ObjectID == "" || derr.Rationale == "" {
		t.Errorf("denial must carry object id and rationale: %+v", derr)
	}

	// The denial is fully explainable from the ledger: exactly one denied
	// event with the rationale and scores.
	events, err := e.DB.QueryProvenance(store.ProvenanceFilter{ObjectID: derr.ObjectID})
	if err != nil {
		t.Fatalf("QueryProvenance: %v", err)
	}
	if len(events) != 1 || events[0].Action != store.ActionDenied {
		t.Fatalf("provenance = %+v, want single denied event", events)
	}
	if events[0].Metadata["reason"] != derr.Rationale {
		t.Errorf("ledger reason = %v, want %q", events[0].Metadata["reason"], derr.Rationale)
	}

	// No governance row, no baseline, no relations for a denied object.
	gov, _ := e.DB.GetGovernance(derr.ObjectID)
	if gov != nil {
		t.Errorf("governance row = %+v, want none for denied object", gov)
	}
	baseline, _ := e.DB.GetBaselineEvent(derr.ObjectID)
	if baseline != nil {
		t.Error("denied object must not get a baseline temporal event")
	}
	relations, _ := e.DB.GetRelations(derr.ObjectID, 10)
	if len(relations) != 0 {
		t.Errorf("relations = %+v, want none", relations)
	}

	// The admission job records the failure.
	var status string
	if err := e.DB.QueryRow("SELECT status FROM jobs LIMIT 1").Scan(&status); err != nil {
		t.Fatalf("query job: %v", err)
	}
	if status != store.JobFailed {
		t.Errorf("job status = %q, want failed", status)
	}
}

func TestAdmitUnknownType(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	_, err := e.Admit(context.Background(), "Starship", map[string]any{"title": "x"}, "tester")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestAdmitInfersRelations(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"alpha": {1, 0, 0},
		"beta":  {0.9, math.Sqrt(1 - 0.81), 0}, // cos 0.9 vs alpha
		"gamma": {0, 0, 1},                     // orthogonal
	}}
	e := testEngine(t, emb)
	ctx := context.Background()

	first, err := e.Admit(ctx, "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("admit alpha: %v", err)
	}
	if _, err := e.Admit(ctx, "Note", map[string]any{"title": "gamma"}, "tester"); err != nil {
		t.Fatalf("admit gamma: %v", err)
	}

	second, err := e.Admit(ctx, "Note", map[string]any{"title": "beta"}, "tester")
	if err != nil {
		t.Fatalf("admit beta: %v", err)
	}

	// beta relates to alpha (cos 0.9 >= 0.80) but not gamma (orthogonal).
	if len(second.Relations) != 1 {
		t.Fatalf("relations = %+v, want exactly one", second.Relations)
	}
	rel := second.Relations[0]
	if rel.ObjectID != first.ID {
		t.Errorf("related object = %s, want %s", rel.ObjectID, first.ID)
	}
	if rel.RelationType != RelationSemanticSimilarity {
		t.Errorf("relation type = %q, want %q", rel.RelationType, RelationSemanticSimilarity)
	}
	if math.Abs(rel.Similarity-0.9) > 1e-3 {
		t.Errorf("similarity = %v, want ~0.9", rel.Similarity)
	}

	// The relation is visible from the other side too.
	alphaView, err := e.Reason(first.ID)
	if err != nil {
		t.Fatalf("Reason alpha: %v", err)
	}
	if len(alphaView.Relations) != 1 || alphaView.Relations[0].ObjectID != second.ID {
		t.Errorf("alpha relations = %+v, want link back to beta", alphaView.Relations)
	}
}

func TestAdmitSkipsIncompatibleTypes(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"ledger": {1, 0, 0},
		"memo":   {1, 0, 0}, // identical vector, incompatible type
	}}
	e := testEngine(t, emb)
	ctx := context.Background()

	if _, err := e.Admit(ctx, "Account", map[string]any{"name": "ledger"}, "tester"); err != nil {
		t.Fatalf("admit account: %v", err)
	}
	got, err := e.Admit(ctx, "Note", map[string]any{"title": "memo"}, "tester")
	if err != nil {
		t.Fatalf("admit note: %v", err)
	}

	if len(got.Relations) != 0 {
		t.Errorf("relations = %+v, want none across Note/Account", got.Relations)
	}
}

func TestReasonIdempotent(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	admitted, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	a, err := e.Reason(admitted.ID)
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	b, err := e.Reason(admitted.ID)
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}

	if a.Governance != b.Governance || len(a.Provenance) != len(b.Provenance) {
		t.Errorf("Reason not idempotent: %+v vs %+v", a, b)
	}
	// Reading must not have grown the ledger.
	events, _ := e.DB.QueryProvenance(store.ProvenanceFilter{ObjectID: admitted.ID})
	if len(events) != 1 {
		t.Errorf("ledger grew to %d events after reads", len(events))
	}
}

func TestReasonNotFound(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	_, err := e.Reason("no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindSimilar(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"alpha": {1, 0, 0},
		"near":  {0.78, math.Sqrt(1 - 0.78*0.78), 0}, // cos 0.78: below relation bar, above query floor
		"far":   {0, 0, 1},
	}}
	e := testEngine(t, emb)
	ctx := context.Background()

	a, err := e.Admit(ctx, "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("admit alpha: %v", err)
	}
	n, err := e.Admit(ctx, "Note", map[string]any{"title": "near"}, "tester")
	if err != nil {
		t.Fatalf("admit near: %v", err)
	}
	if _, err := e.Admit(ctx, "Note", map[string]any{"title": "far"}, "tester"); err != nil {
		t.Fatalf("admit far: %v", err)
	}

	// 0.78 never became a persisted relation...
	if len(n.Relations) != 0 {
		t.Errorf("relations = %+v, want none at similarity 0.78", n.Relations)
	}

	// ...but the similarity query still surfaces it.
	similar, err := e.FindSimilar(a.ID, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(similar) != 1 {
		t.Fatalf("similar = %+v, want one neighbor", similar)
	}
	if similar[0].ID != n.ID {
		t.Errorf("neighbor = %s, want %s", similar[0].ID, n.ID)
	}
	if math.Abs(similar[0].Similarity-0.78) > 1e-3 {
		t.Errorf("similarity = %v, want ~0.78", similar[0].Similarity)
	}
}

func TestFindSimilarNotFound(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	_, err := e.FindSimilar("ghost", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAdmitCompletesJob(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	got, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	var jobID, status, objectID string
	err = e.DB.QueryRow("SELECT id, status, object_id FROM jobs LIMIT 1").Scan(&jobID, &status, &objectID)
	if err != nil {
		t.Fatalf("query job: %v", err)
	}
	if status != store.JobCompleted {
		t.Errorf("job status = %q, want completed", status)
	}
	if objectID != got.ID {
		t.Errorf("job object = %q, want %q", objectID, got.ID)
	}
}

func TestTextRepr(t *testing.T) {
	got := textRepr("Note", map[string]any{
		"title":       "alpha",
		"data":        "body",
		"object_type": "Note",
		"count":       3,
	})
	want := "Note\ncount: 3\ndata: body\ntitle: alpha"
	if got != want {
		t.Errorf("textRepr = %q, want %q", got, want)
	}
}

func TestGetDriftAfterAdmit(t *testing.T) {
	e := testEngine(t, &stubEmbedder{})

	admitted, err := e.Admit(context.Background(), "Note", map[string]any{"title": "alpha"}, "tester")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	report, err := e.GetDrift(admitted.ID)
	if err != nil {
		t.Fatalf("GetDrift: %v", err)
	}
	if report.Drift.Status != DriftStable {
		t.Errorf("drift status = %q, want stable right after admission", report.Drift.Status)
	}
	if report.Trust.Initial != admitted.Governance.TrustScore {
		t.Errorf("initial trust = %v, want %v", report.Trust.Initial, admitted.Governance.TrustScore)
	}

	timeline, err := e.Timeline(admitted.ID, 0)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(timeline) != 1 || timeline[0].EventType != store.EventBaseline {
		t.Errorf("timeline = %+v, want single baseline event", timeline)
	}
}
