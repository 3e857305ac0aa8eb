package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/aegis-kb/aegis/internal/store"
)

// Drift status classifications, by magnitude of 1 - cosine similarity
// between the baseline vector and the latest vector.
const (
	DriftStable = "stable"
	DriftMinor  = "minor_drift"
	DriftMajor  = "major_drift"
)

// Tracker computes trust decay and semantic drift over the temporal event
// stream. Decay parameters are exported so the CLI and config can tune them.
type Tracker struct {
	db *store.DB

	// HalfLifeDays is the trust half-life: trust halves every HalfLifeDays.
	HalfLifeDays float64
	// MinTrust is the decay floor; trust never drops below it.
	MinTrust float64
	// Drift classification boundaries.
	MinorThreshold float64
	MajorThreshold float64
}

// NewTracker creates a Tracker with the standard 30-day half-life, 0.1 trust
// floor, and 0.05/0.15 drift boundaries.
func NewTracker(db *store.DB) *Tracker {
	return &Tracker{
		db:             db,
		HalfLifeDays:   30,
		MinTrust:       0.1,
		MinorThreshold: 0.05,
		MajorThreshold: 0.15,
	}
}

// TrustDecay applies exponential decay to an initial trust score. The decay
// constant derives from the half-life, and the result is floored at MinTrust
// so aged objects stay queryable rather than vanishing.
func (t *Tracker) TrustDecay(initial float64, createdAt, now time.Time) float64 {
	deltaDays := now.Sub(createdAt).Hours() / 24
	if deltaDays < 0 {
		deltaDays = 0
	}
	lambda := math.Ln2 / t.HalfLifeDays
	decayed := initial * math.Exp(-lambda*deltaDays)
	return math.Max(t.MinTrust, decayed)
}

// ClassifyDrift measures how far current has drifted from baseline and
// classifies the magnitude. Drift is symmetric in its arguments.
func (t *Tracker) ClassifyDrift(baseline, current []float64) (float64, string) {
	drift := 1 - CosineSimilarity(baseline, current)
	switch {
	case drift < t.MinorThreshold:
		return drift, DriftStable
	case drift < t.MajorThreshold:
		return drift, DriftMinor
	default:
		return drift, DriftMajor
	}
}

// Recommend maps decayed trust and drift status to an action. Stricter than
// admission: any major drift denies regardless of trust.
func (t *Tracker) Recommend(trust float64, driftStatus string) string {
	switch {
	case trust >= allowTrust && driftStatus == DriftStable:
		return DecisionAllow
	case trust >= flagTrust && (driftStatus == DriftStable || driftStatus == DriftMinor):
		return DecisionFlag
	default:
		return DecisionDeny
	}
}

// RecordBaseline appends the baseline temporal event for a freshly admitted
// object. The first baseline is the permanent drift reference; later
// baselines are stored but never consulted.
func (t *Tracker) RecordBaseline(objectID string, vector []float64, coherence, trust float64, metadata map[string]any) error {
	return t.db.AppendTemporalEvent(&store.TemporalEvent{
		ObjectID:  objectID,
		EventType: store.EventBaseline,
		Vector:    vector,
		Coherence: coherence,
		Trust:     trust,
		Metadata:  metadata,
	})
}

// EventView summarizes one temporal event without its raw vector.
type EventView struct {
	Timestamp string  `json:"timestamp"`
	EventType string  `json:"event_type"`
	Coherence float64 `json:"coherence_score"`
	Trust     float64 `json:"trust_score"`
}

// TrustReport carries the decay computation for a drift report.
type TrustReport struct {
	Initial float64 `json:"initial"`
	Current float64 `json:"current"`
	Delta   float64 `json:"delta"`
	AgeDays float64 `json:"age_days"`
}

// DriftMetrics carries the vector drift computation for a drift report.
type DriftMetrics struct {
	Magnitude float64 `json:"magnitude"`
	Status    string  `json:"status"`
}

// DriftReport is the full temporal assessment of one object.
type DriftReport struct {
	ObjectID       string       `json:"object_id"`
	AssessedAt     string       `json:"assessed_at"`
	Baseline       EventView    `json:"baseline"`
	Latest         EventView    `json:"latest"`
	Trust          TrustReport  `json:"trust"`
	Drift          DriftMetrics `json:"drift"`
	Recommendation string       `json:"recommendation"`
}

// Drift assesses one object: decayed trust since its baseline, vector drift
// between baseline and latest event, and a recommendation. Returns
// ErrNotFound when the object has no baseline (denied objects never do).
func (t *Tracker) Drift(objectID string, now time.Time) (*DriftReport, error) {
	baseline, err := t.db.GetBaselineEvent(objectID)
	if err != nil {
		return nil, fmt.Errorf("load baseline for %s: %w", objectID, err)
	}
	if baseline == nil {
		return nil, fmt.Errorf("no baseline event for %s: %w", objectID, ErrNotFound)
	}
	latest, err := t.db.GetLatestEvent(objectID)
	if err != nil {
		return nil, fmt.Errorf("load latest event for %s: %w", objectID, err)
	}

	createdAt, err := store.ParseTime(baseline.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse baseline timestamp: %w", err)
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	current := t.TrustDecay(baseline.Trust, createdAt, now)

	magnitude, status := 0.0, DriftStable
	if baseline.Vector != nil && latest.Vector != nil {
		magnitude, status = t.ClassifyDrift(baseline.Vector, latest.Vector)
	}

	return &DriftReport{
		ObjectID:   objectID,
		AssessedAt: store.FormatTime(now),
		Baseline:   eventView(baseline),
		Latest:     eventView(latest),
		Trust: TrustReport{
			Initial: baseline.Trust,
			Current: round3(current),
			Delta:   round3(current - baseline.Trust),
			AgeDays: round3(ageDays),
		},
		Drift: DriftMetrics{
			Magnitude: round3(magnitude),
			Status:    status,
		},
		Recommendation: t.Recommend(current, status),
	}, nil
}

func eventView(ev *store.TemporalEvent) EventView {
	return EventView{
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		Coherence: ev.Coherence,
		Trust:     ev.Trust,
	}
}

// DecayPoint is one sample of a projected decay timeline.
type DecayPoint struct {
	Day    int     `json:"day"`
	Date   string  `json:"date"`
	Trust  float64 `json:"trust"`
	Action string  `json:"action"`
}

// DecayTimeline projects trust forward in weekly steps, assuming no drift.
// The final day is always included even when it falls mid-week.
func (t *Tracker) DecayTimeline(initial float64, createdAt time.Time, daysAhead int) []DecayPoint {
	if daysAhead <= 0 {
		daysAhead = 90
	}

	sample := func(day int) DecayPoint {
		at := createdAt.AddDate(0, 0, day)
		trust := t.TrustDecay(initial, createdAt, at)
		return DecayPoint{
			Day:    day,
			Date:   at.Format("2006-01-02"),
			Trust:  round3(trust),
			Action: t.Recommend(trust, DriftStable),
		}
	}

	var points []DecayPoint
	for day := 0; day <= daysAhead; day += 7 {
		points = append(points, sample(day))
	}
	if points[len(points)-1].Day != daysAhead {
		points = append(points, sample(daysAhead))
	}
	return points
}
