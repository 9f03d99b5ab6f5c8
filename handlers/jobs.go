package handlers

import (
	"net/http"
	"strconv"
)

// HandleListJobs returns recent jobs newest first, with progress counters
// derived by the supervisor where the stored meta lags behind.
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	jobs, err := s.supervisor.ListJobs(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list jobs")
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
