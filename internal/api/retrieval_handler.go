// File path: internal/api/retrieval_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/retrieval"
)

type searchHit struct {
	retrieval.Chunk
	SimilarityPercent float64 `json:"similarity_percent"`
}

// handleSearch runs the hybrid index+vector lookup. A repository that is
// not indexed yet yields a 200 with a structured error field; polling
// callers treat that as an expected state, not a failure.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	projectID := r.URL.Query().Get("project_id")
	if query == "" || projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("q and project_id parameters are required"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	var chunkTypes []string
	if v := r.URL.Query().Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				chunkTypes = append(chunkTypes, trimmed)
			}
		}
	}

	result := s.retrieval.Retrieve(r.Context(), projectID, query, limit, chunkTypes)
	hits := make([]searchHit, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		hits = append(hits, searchHit{Chunk: chunk, SimilarityPercent: 100 * chunk.Score})
	}
	common.Logger().Debug("api: search served",
		"project", projectID, "results", len(hits), "elapsed_ms", result.RetrievalTimeMS)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":           hits,
		"retrieval_time_ms": result.RetrievalTimeMS,
		"error":             result.Error,
	})
}

type featureContextRequest struct {
	ProjectID   string `json:"project_id"`
	Description string `json:"description"`
}

func (s *Server) handleFeatureContext(w http.ResponseWriter, r *http.Request) {
	var req featureContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id and description are required"))
		return
	}
	result := s.retrieval.ContextForFeature(r.Context(), req.ProjectID, req.Description)
	writeJSON(w, http.StatusOK, result)
}

type prdContextRequest struct {
	ProjectID   string   `json:"project_id"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

func (s *Server) handlePRDContext(w http.ResponseWriter, r *http.Request) {
	var req prdContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	result := s.retrieval.ContextForPRD(r.Context(), req.ProjectID, req.Description, req.Features)
	writeJSON(w, http.StatusOK, result)
}
