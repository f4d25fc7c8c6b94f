// File path: internal/api/repositories_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/indexer"
	"github.com/lfg-hq/codeindex/internal/job"
)

type indexRequest struct {
	ProjectID       string   `json:"project_id"`
	RepoURL         string   `json:"repo_url"`
	Branch          string   `json:"branch,omitempty"`
	ForceFull       bool     `json:"force_full,omitempty"`
	Extensions      []string `json:"extensions,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MaxFileSizeKB   int      `json:"max_file_size_kb,omitempty"`
}

type indexResponse struct {
	RepositoryID string              `json:"repository_id"`
	Job          catalog.IndexingJob `json:"job"`
}

// handleIndexRepository validates the request, persists any file filter
// overrides and queues an indexing job.
func (s *Server) handleIndexRepository(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.ProjectID == "" || req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id and repo_url are required"))
		return
	}

	ctx := r.Context()
	repo, _, err := s.store.GetOrCreateRepository(ctx, req.ProjectID, req.RepoURL, req.Branch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(req.Extensions) > 0 || len(req.ExcludePatterns) > 0 || req.MaxFileSizeKB > 0 {
		if err := s.store.SetRepositoryFilters(ctx, repo.ID,
			strings.Join(req.Extensions, ","), strings.Join(req.ExcludePatterns, ","),
			req.MaxFileSizeKB); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	queued, err := s.jobs.EnqueueIndex(ctx, indexer.Options{
		ProjectID: req.ProjectID,
		RepoURL:   req.RepoURL,
		Branch:    req.Branch,
		ForceFull: req.ForceFull,
	})
	if errors.Is(err, job.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	common.Logger().Info("api: indexing queued",
		"project", req.ProjectID, "repo", repo.ID, "job", queued.ID)
	writeJSON(w, http.StatusAccepted, indexResponse{RepositoryID: repo.ID, Job: queued})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"repositories": repos})
}

type statusResponse struct {
	Repository      catalog.Repository   `json:"repository"`
	ProgressPercent float64              `json:"progress_percent"`
	CurrentJob      *catalog.IndexingJob `json:"current_job,omitempty"`
}

// handleRepositoryStatus reports the status enum plus live progress from
// the most recent job, for UI polling during a run.
func (s *Server) handleRepositoryStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo, err := s.store.Repository(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("repository not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{Repository: repo}
	switch repo.Status {
	case catalog.RepoCompleted:
		resp.ProgressPercent = 100
	case catalog.RepoIndexing:
		jobs, err := s.store.RepositoryJobs(ctx, repo.ID, 1)
		if err == nil && len(jobs) > 0 {
			resp.CurrentJob = &jobs[0]
			if jobs[0].TotalFiles > 0 {
				resp.ProgressPercent = 100 * float64(jobs[0].ProcessedFiles) / float64(jobs[0].TotalFiles)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePauseRepository sets the explicit paused state. Nothing enters
// paused automatically; resuming queues a fresh incremental run.
func (s *Server) handlePauseRepository(w http.ResponseWriter, r *http.Request) {
	s.transitionRepository(w, r, catalog.RepoPaused)
}

func (s *Server) handleResumeRepository(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo, err := s.store.Repository(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("repository not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if repo.Status != catalog.RepoPaused {
		writeError(w, http.StatusConflict, fmt.Errorf("repository is not paused (status: %s)", repo.Status))
		return
	}
	queued, err := s.jobs.EnqueueIndex(ctx, indexer.Options{
		ProjectID: repo.ProjectID,
		RepoURL:   repo.RepoURL,
		Branch:    repo.Branch,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job": queued})
}

func (s *Server) transitionRepository(w http.ResponseWriter, r *http.Request, status catalog.RepoStatus) {
	ctx := r.Context()
	repo, err := s.store.Repository(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("repository not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.SetRepositoryStatus(ctx, repo.ID, status, ""); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	repo.Status = status
	writeJSON(w, http.StatusOK, repo)
}

// handleDeleteRepository schedules the cascade deletion as a background
// cleanup job; the catalog rows and the vector collection go together.
func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	queued, err := s.jobs.EnqueueCleanup(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("repository not found"))
		return
	}
	if errors.Is(err, job.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job": queued})
}

// handleReconcile repairs chunks whose embeddings never reached the
// vector store, synchronously.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo, err := s.store.Repository(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("repository not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	reconciled, err := s.orch.Reconcile(ctx, repo.ID, repo.ProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reconciled": reconciled})
}
