package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-kb/aegis/internal/engine"
	"github.com/aegis-kb/aegis/internal/store"
)

// Server is the governance HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the given engine.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/types", s.handleTypes)

		r.Post("/objects", s.handleAdmit)
		r.Get("/objects/{objectID}", s.handleGetObject)
		r.Get("/objects/{objectID}/similar", s.handleSimilar)
		r.Get("/objects/{objectID}/drift", s.handleDrift)
		r.Get("/objects/{objectID}/timeline", s.handleTimeline)

		r.Get("/provenance", s.handleProvenance)
		r.Get("/jobs/{jobID}", s.handleGetJob)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	model := ""
	if s.engine.Embedder != nil {
		model = s.engine.Embedder.Model()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"uptime":          time.Since(s.started).Seconds(),
		"db":              dbOK,
		"db_path":         s.db.Path,
		"embedding_model": model,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
