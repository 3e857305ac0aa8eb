package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/aegis-kb/aegis/internal/store"
)

// Governance decisions, evaluated in order: first match wins.
const (
	DecisionAllow = "allow"
	DecisionFlag  = "flag"
	DecisionDeny  = "deny"
)

// Default decision thresholds.
const (
	allowCoherence = 0.8
	allowTrust     = 0.7
	flagCoherence  = 0.6
	flagTrust      = 0.5
)

// Verdict is the outcome of one governance evaluation.
type Verdict struct {
	Coherence float64 `json:"coherence_score"`
	Trust     float64 `json:"trust_score"`
	Validated bool    `json:"validated"`
	Decision  string  `json:"decision"`
	Rationale string  `json:"rationale"`
}

// Governor scores coherence and trust for candidate objects and validates
// semantic relations. It is pure: no storage access, no randomness, and it
// never returns an error — even the worst input gets a deny verdict so a
// provenance event can always be written.
type Governor struct {
	// Decision thresholds, exported so stricter policies can be configured.
	AllowCoherence float64
	AllowTrust     float64
	FlagCoherence  float64
	FlagTrust      float64

	similarityThreshold float64
	trustedActors       map[string]bool
	compatible          map[string]map[string]bool
}

// defaultTrustedActors is the built-in actor allowlist for trust scoring.
var defaultTrustedActors = []string{"aegis", "core", "admin"}

// crossTypePairs lists type pairs that may relate besides same-type pairs.
// The table is symmetric.
var crossTypePairs = [][2]string{
	{"Transaction", "Account"},
	{"Forecast", "Transaction"},
	{"Document", "Concept"},
}

// NewGovernor creates a Governor. Pass nil to use the default trusted-actor
// allowlist.
func NewGovernor(trustedActors []string) *Governor {
	if trustedActors == nil {
		trustedActors = defaultTrustedActors
	}
	trusted := make(map[string]bool, len(trustedActors))
	for _, a := range trustedActors {
		trusted[a] = true
	}

	compatible := map[string]map[string]bool{}
	add := func(a, b string) {
		if compatible[a] == nil {
			compatible[a] = map[string]bool{}
		}
		compatible[a][b] = true
	}
	for _, pair := range crossTypePairs {
		add(pair[0], pair[1])
		add(pair[1], pair[0])
	}

	return &Governor{
		AllowCoherence:      allowCoherence,
		AllowTrust:          allowTrust,
		FlagCoherence:       flagCoherence,
		FlagTrust:           flagTrust,
		similarityThreshold: 0.80,
		trustedActors:       trusted,
		compatible:          compatible,
	}
}

// Evaluate scores a candidate object and issues a decision. The provenance
// chain is expected newest-first, as the ledger returns it; now anchors the
// age component so results are deterministic for fixed inputs.
func (g *Governor) Evaluate(objectType string, fields map[string]any, vector []float64, chain []store.ProvenanceEvent, now time.Time) Verdict {
	coherence := g.coherence(objectType, fields, vector)
	trust := g.trust(chain, now)

	v := Verdict{Coherence: coherence, Trust: trust}
	switch {
	case coherence >= g.AllowCoherence && trust >= g.AllowTrust:
		v.Decision = DecisionAllow
		v.Validated = true
		v.Rationale = "object meets coherence and trust thresholds"
	case coherence >= g.FlagCoherence && trust >= g.FlagTrust:
		v.Decision = DecisionFlag
		v.Rationale = "object marginally coherent, flagged for review"
	default:
		v.Decision = DecisionDeny
		v.Rationale = fmt.Sprintf("coherence %.2f or trust %.2f below threshold", coherence, trust)
	}
	return v
}

// coherence blends structural completeness (weight 0.6) with a vector
// quality proxy (weight 0.4). A nil vector counts as full quality so that
// purely symbolic evaluations are not penalized.
func (g *Governor) coherence(objectType string, fields map[string]any, vector []float64) float64 {
	present := 0
	if objectType != "" {
		present++
	}
	if len(fields) > 0 {
		present++
	}
	completeness := float64(present) / 2

	quality := 1.0
	if vector != nil {
		// Penalize very small vectors; anything at or above magnitude 1.5
		// counts as full quality.
		quality = math.Min(1.0, vectorNorm(vector)/1.5)
	}

	return round3(completeness*0.6 + quality*0.4)
}

// trust scores the provenance chain: validation count capped at 3 (weight
// 0.4), trusted-actor fraction (weight 0.4), and age of the oldest event
// capped at 30 days (weight 0.2). An empty chain yields the neutral prior.
func (g *Governor) trust(chain []store.ProvenanceEvent, now time.Time) float64 {
	if len(chain) == 0 {
		return 0.5
	}

	validations := 0
	trusted := 0
	for _, ev := range chain {
		if ev.Action == store.ActionValidated {
			validations++
		}
		if g.trustedActors[ev.Actor] {
			trusted++
		}
	}
	validationScore := math.Min(1.0, float64(validations)/3.0)
	credibility := float64(trusted) / float64(len(chain))

	// Chain is newest-first; the oldest event anchors the age component.
	ageScore := 0.0
	oldest := chain[len(chain)-1]
	if t, err := store.ParseTime(oldest.Timestamp); err == nil {
		ageDays := now.Sub(t).Hours() / 24
		if ageDays > 0 {
			ageScore = math.Min(1.0, ageDays/30.0)
		}
	}

	return round3(validationScore*0.4 + credibility*0.4 + ageScore*0.2)
}

// ValidateRelation checks whether a semantic relation between two object
// types at the given similarity should be persisted. Returns the first
// failing reason, or success.
func (g *Governor) ValidateRelation(sourceType, targetType string, similarity float64) (bool, string) {
	if similarity < g.similarityThreshold {
		return false, fmt.Sprintf("similarity too low: %.3f < %.2f", similarity, g.similarityThreshold)
	}
	if sourceType != targetType && !g.compatible[sourceType][targetType] {
		return false, fmt.Sprintf("incompatible types: %s <-> %s", sourceType, targetType)
	}
	return true, "relation validated"
}

// CompatibleTypes returns objectType plus every type it may relate to.
func (g *Governor) CompatibleTypes(objectType string) []string {
	types := []string{objectType}
	for t := range g.compatible[objectType] {
		types = append(types, t)
	}
	return types
}

func vectorNorm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
