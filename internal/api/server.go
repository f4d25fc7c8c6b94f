// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/indexer"
	"github.com/lfg-hq/codeindex/internal/job"
	"github.com/lfg-hq/codeindex/internal/retrieval"
)

// Server exposes the indexing pipeline and the retrieval engine over
// HTTP. All state lives in the catalog and the vector store; the server
// itself is stateless and safe for concurrent use.
type Server struct {
	router    chi.Router
	store     *catalog.Store
	jobs      *job.Manager
	retrieval *retrieval.Engine
	orch      *indexer.Orchestrator
}

func NewServer(store *catalog.Store, jobs *job.Manager, engine *retrieval.Engine, orch *indexer.Orchestrator) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		store:     store,
		jobs:      jobs,
		retrieval: engine,
		orch:      orch,
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path,
				"dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/repositories", s.handleIndexRepository)
		r.Get("/repositories", s.handleListRepositories)
		r.Get("/repositories/{id}/status", s.handleRepositoryStatus)
		r.Post("/repositories/{id}/reconcile", s.handleReconcile)
		r.Post("/repositories/{id}/pause", s.handlePauseRepository)
		r.Post("/repositories/{id}/resume", s.handleResumeRepository)
		r.Delete("/repositories/{id}", s.handleDeleteRepository)
		r.Get("/jobs/{id}", s.handleJob)
		r.Get("/search", s.handleSearch)
		r.Post("/context/feature", s.handleFeatureContext)
		r.Post("/context/prd", s.handlePRDContext)
		r.Get("/notifications", s.handleNotifications)
		r.Get("/logs", s.handleLogs)
	})

	s.router.Get("/debug/vars", expvar.Handler().ServeHTTP)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
