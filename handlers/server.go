package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/services/importer"
	"github.com/insoln/slack-mm2/services/jobs"
	"github.com/insoln/slack-mm2/services/mmclient"
)

// Server is the HTTP surface over the import pipeline, the export
// orchestrator and the job supervisor.
type Server struct {
	importer   *importer.Service
	supervisor *jobs.Supervisor
	exporter   jobs.ExportRunner
	entities   *db.PostgresEntitiesRepository
	jobs       *db.PostgresJobsRepository
	plugin     *mmclient.PluginAdmin
	logger     log.FieldLogger
}

func NewServer(
	importerService *importer.Service,
	supervisor *jobs.Supervisor,
	exporter jobs.ExportRunner,
	entities *db.PostgresEntitiesRepository,
	jobsRepo *db.PostgresJobsRepository,
	plugin *mmclient.PluginAdmin,
	logger log.FieldLogger,
) *Server {
	return &Server{
		importer:   importerService,
		supervisor: supervisor,
		exporter:   exporter,
		entities:   entities,
		jobs:       jobsRepo,
		plugin:     plugin,
		logger:     logger,
	}
}

func (s *Server) SetupEndpoints(router *mux.Router) {
	router.HandleFunc("/upload", s.HandleUpload).Methods(http.MethodPost)
	router.HandleFunc("/export", s.HandleExport).Methods(http.MethodPost)
	router.HandleFunc("/jobs", s.HandleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/stats/mappings", s.HandleMappingStats).Methods(http.MethodGet)
	router.HandleFunc("/progress/stream", s.HandleProgressStream).Methods(http.MethodGet)
	router.HandleFunc("/healthcheck", s.HandleHealthcheck).Methods(http.MethodGet)
	router.HandleFunc("/plugin/status", s.HandlePluginStatus).Methods(http.MethodGet)
	router.HandleFunc("/plugin/deploy", s.HandlePluginDeploy).Methods(http.MethodPost)
	router.HandleFunc("/plugin/enable", s.HandlePluginEnable).Methods(http.MethodPost)
	router.HandleFunc("/plugin/ensure", s.HandlePluginEnsure).Methods(http.MethodPost)
}

func (s *Server) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}
