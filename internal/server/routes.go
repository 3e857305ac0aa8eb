package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-kb/aegis/internal/engine"
	"github.com/aegis-kb/aegis/internal/store"
)

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ObjectType string         `json:"object_type"`
		Fields     map[string]any `json:"fields"`
		Actor      string         `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ObjectType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "object_type required"})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	obj, err := s.engine.Admit(r.Context(), req.ObjectType, req.Fields, req.Actor)
	if err != nil {
		s.writeAdmitError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// writeAdmitError maps pipeline errors onto status codes. Validation and
// denial are expected outcomes, not server faults.
func (s *Server) writeAdmitError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":             "validation failed",
			"object_type":       verr.ObjectType,
			"validation_errors": verr.Errors,
		})
		return
	}

	var derr *engine.DeniedError
	if errors.As(err, &derr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":           "admission denied",
			"object_id":       derr.ObjectID,
			"rationale":       derr.Rationale,
			"coherence_score": derr.Coherence,
			"trust_score":     derr.Trust,
		})
		return
	}

	if errors.Is(err, engine.ErrEmbeddingUnavailable) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.engine.Reason(chi.URLParam(r, "objectID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))

	neighbors, err := s.engine.FindSimilar(chi.URLParam(r, "objectID"), topK)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if neighbors == nil {
		neighbors = []engine.Neighbor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar": neighbors})
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.GetDrift(chi.URLParam(r, "objectID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.engine.Timeline(chi.URLParam(r, "objectID"), limit)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if events == nil {
		events = []store.TemporalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": events})
}

func (s *Server) handleProvenance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := s.db.QueryProvenance(store.ProvenanceFilter{
		ObjectID: q.Get("object_id"),
		Action:   q.Get("action"),
		Actor:    q.Get("actor"),
		Since:    q.Get("since"),
		Until:    q.Get("until"),
		Limit:    limit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []store.ProvenanceEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.engine.Ontology.ListTypes()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.db.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
