package handlers

import (
	"context"
	"net/http"
)

// HandleExport triggers an unanchored export run in the background, picking
// up every job currently in the exporting stage.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Export run requested")

	go func() {
		if err := s.exporter.Run(context.Background(), nil); err != nil {
			s.logger.WithError(err).Error("Export run failed")
		}
	}()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "export_started",
		"message": "Export running in the background",
	})
}
