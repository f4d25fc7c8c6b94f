// File path: internal/api/jobs_handler.go
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
)

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.Job(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := common.LogEntries()
	if level := strings.ToLower(r.URL.Query().Get("level")); level != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if strings.ToLower(entry.Level) == level {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}

// handleNotifications streams job completion events for one project as
// server-sent events until the client disconnects.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id parameter is required"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	notes, cancel := s.jobs.Subscribe(projectID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case note := <-notes:
			payload, err := json.Marshal(note)
			if err != nil {
				common.Logger().Error("api: encoding notification failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: indexing_complete\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
