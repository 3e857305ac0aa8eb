package engine

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aegis-kb/aegis/internal/store"
)

func unitVec() []float64 { return []float64{1, 0, 0} }

func TestEvaluateDeterministic(t *testing.T) {
	g := NewGovernor(nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fields := map[string]any{"title": "alpha", "data": "hello"}

	a := g.Evaluate("Note", fields, unitVec(), nil, now)
	b := g.Evaluate("Note", fields, unitVec(), nil, now)
	if a != b {
		t.Errorf("verdicts differ for identical inputs: %+v vs %+v", a, b)
	}
}

func TestCoherenceFullObject(t *testing.T) {
	g := NewGovernor(nil)
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), nil, time.Now())

	// completeness 1.0, unit magnitude scaled by 1.5 -> 0.6 + 0.4*(1/1.5)
	want := 0.867
	if math.Abs(v.Coherence-want) > 1e-9 {
		t.Errorf("coherence = %v, want %v", v.Coherence, want)
	}
}

func TestCoherenceNilVector(t *testing.T) {
	g := NewGovernor(nil)
	v := g.Evaluate("Note", map[string]any{"title": "x"}, nil, nil, time.Now())
	if v.Coherence != 1.0 {
		t.Errorf("coherence = %v, want 1.0 for nil vector", v.Coherence)
	}
}

func TestTrustEmptyChain(t *testing.T) {
	g := NewGovernor(nil)
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), nil, time.Now())
	if v.Trust != 0.5 {
		t.Errorf("trust = %v, want neutral prior 0.5", v.Trust)
	}
}

func TestTrustMatureChain(t *testing.T) {
	g := NewGovernor(nil)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Three validations by trusted actors, oldest event 30 days back:
	// every trust component saturates.
	chain := []store.ProvenanceEvent{
		{Action: store.ActionValidated, Actor: "admin", Timestamp: store.FormatTime(now.AddDate(0, 0, -1))},
		{Action: store.ActionValidated, Actor: "core", Timestamp: store.FormatTime(now.AddDate(0, 0, -10))},
		{Action: store.ActionValidated, Actor: "aegis", Timestamp: store.FormatTime(now.AddDate(0, 0, -30))},
	}
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), chain, now)
	if v.Trust != 1.0 {
		t.Errorf("trust = %v, want 1.0", v.Trust)
	}
	if v.Decision != DecisionAllow || !v.Validated {
		t.Errorf("decision = %q validated = %v, want allow/true", v.Decision, v.Validated)
	}
}

func TestTrustUntrustedActors(t *testing.T) {
	g := NewGovernor(nil)
	now := time.Now().UTC()

	chain := []store.ProvenanceEvent{
		{Action: store.ActionIngested, Actor: "rando", Timestamp: store.FormatTime(now)},
	}
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), chain, now)
	// No validations, no trusted actors, no age.
	if v.Trust != 0 {
		t.Errorf("trust = %v, want 0", v.Trust)
	}
	if v.Decision != DecisionDeny {
		t.Errorf("decision = %q, want deny", v.Decision)
	}
}

func TestEvaluateDenyIncompleteObject(t *testing.T) {
	g := NewGovernor(nil)
	v := g.Evaluate("", nil, nil, nil, time.Now())

	// completeness 0 -> coherence 0.4, below the flag floor.
	if v.Decision != DecisionDeny {
		t.Errorf("decision = %q, want deny", v.Decision)
	}
	if v.Rationale == "" {
		t.Error("deny verdict must carry a rationale")
	}
}

func TestEvaluateFlagNewObject(t *testing.T) {
	g := NewGovernor(nil)
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), nil, time.Now())

	// Fresh objects carry neutral trust 0.5, below the allow bar.
	if v.Decision != DecisionFlag {
		t.Errorf("decision = %q, want flag", v.Decision)
	}
	if v.Validated {
		t.Error("flagged object must not be marked validated")
	}
}

func TestValidateRelation(t *testing.T) {
	g := NewGovernor(nil)

	tests := []struct {
		name       string
		source     string
		target     string
		similarity float64
		want       bool
		wantReason string
	}{
		{"below threshold", "Note", "Note", 0.79, false, "similarity too low"},
		{"at threshold same type", "Note", "Note", 0.80, true, "relation validated"},
		{"incompatible types", "Note", "Account", 0.95, false, "incompatible types"},
		{"transaction account", "Transaction", "Account", 0.85, true, ""},
		{"account transaction", "Account", "Transaction", 0.85, true, ""},
		{"forecast transaction", "Forecast", "Transaction", 0.9, true, ""},
		{"document concept", "Document", "Concept", 0.81, true, ""},
		{"document account", "Document", "Account", 0.99, false, "incompatible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := g.ValidateRelation(tt.source, tt.target, tt.similarity)
			if ok != tt.want {
				t.Errorf("ok = %v, want %v (reason %q)", ok, tt.want, reason)
			}
			if tt.wantReason != "" && !strings.Contains(reason, tt.wantReason) {
				t.Errorf("reason = %q, want mention of %q", reason, tt.wantReason)
			}
		})
	}
}

func TestCompatibleTypes(t *testing.T) {
	g := NewGovernor(nil)

	types := g.CompatibleTypes("Transaction")
	want := map[string]bool{"Transaction": true, "Account": true, "Forecast": true}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for _, typ := range types {
		if !want[typ] {
			t.Errorf("unexpected compatible type %q", typ)
		}
	}

	noteTypes := g.CompatibleTypes("Note")
	if len(noteTypes) != 1 || noteTypes[0] != "Note" {
		t.Errorf("Note compatible types = %v, want only Note", noteTypes)
	}
}

func TestCustomTrustedActors(t *testing.T) {
	g := NewGovernor([]string{"pipeline"})
	now := time.Now().UTC()

	chain := []store.ProvenanceEvent{
		{Action: store.ActionIngested, Actor: "pipeline", Timestamp: store.FormatTime(now)},
	}
	v := g.Evaluate("Note", map[string]any{"title": "x"}, unitVec(), chain, now)
	// Credibility 1.0 contributes 0.4; nothing else.
	if v.Trust != 0.4 {
		t.Errorf("trust = %v, want 0.4", v.Trust)
	}
}
