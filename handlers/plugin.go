package handlers

import (
	"net/http"
)

// HandlePluginStatus reports the installed importer plugin relative to the
// local bundle.
func (s *Server) HandlePluginStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.plugin.Status(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read plugin status")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) HandlePluginDeploy(w http.ResponseWriter, r *http.Request) {
	if err := s.plugin.Deploy(r.Context()); err != nil {
		s.logger.WithError(err).Error("Plugin deploy failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "uploaded",
		"plugin_id": s.plugin.PluginID(),
	})
}

func (s *Server) HandlePluginEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.plugin.Enable(r.Context()); err != nil {
		s.logger.WithError(err).Error("Plugin enable failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "enabled",
		"plugin_id": s.plugin.PluginID(),
	})
}

// HandlePluginEnsure deploys or enables the plugin as needed and reports
// what it did.
func (s *Server) HandlePluginEnsure(w http.ResponseWriter, r *http.Request) {
	result, err := s.plugin.Ensure(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Plugin ensure failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
