package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// HandleUpload saves an uploaded Slack export archive to a temp path and
// starts the import pipeline in the background. The archive file itself is
// kept around so the jobs endpoint can derive file totals from it.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.logger.WithError(err).Error("Upload rejected: missing multipart file field")
		s.writeError(w, http.StatusBadRequest, "multipart file field is required")
		return
	}
	defer file.Close()

	s.logger.WithFields(log.Fields{"filename": header.Filename, "size": header.Size}).Info("Upload received")

	suffix := filepath.Ext(header.Filename)
	if suffix == "" {
		suffix = ".tmp"
	}
	tmp, err := os.CreateTemp("", "slack-upload-*"+suffix)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create temp file for upload")
		s.writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	size, err := io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		s.logger.WithError(err).Error("Failed to save upload")
		s.writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	if !strings.EqualFold(suffix, ".zip") {
		os.Remove(tmp.Name())
		s.logger.Errorf("Unsupported upload type: %s", header.Filename)
		s.writeError(w, http.StatusBadRequest, "only Slack export zip archives are accepted")
		return
	}

	job, err := s.importer.Begin(r.Context(), tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		s.logger.WithError(err).Error("Failed to create import job")
		s.writeError(w, http.StatusInternalServerError, "failed to create import job")
		return
	}

	// Detached from the request context: the import outlives the response.
	go func() {
		if err := s.importer.Run(context.Background(), job); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Error("Import pipeline failed")
		}
	}()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"filename": header.Filename,
		"size":     size,
		"status":   "processing",
	})
}
