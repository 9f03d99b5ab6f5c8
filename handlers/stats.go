package handlers

import (
	"net/http"
	"sort"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
)

var statusOrder = []models.MappingStatus{
	models.MappingStatusPending,
	models.MappingStatusSkipped,
	models.MappingStatusFailed,
	models.MappingStatusSuccess,
}

// HandleMappingStats returns entity counts grouped by type and status plus
// a zero-filled matrix for table rendering.
func (s *Server) HandleMappingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.entities.GetMappingStats(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute mapping stats")
		s.writeError(w, http.StatusInternalServerError, "failed to compute mapping stats")
		return
	}
	s.writeJSON(w, http.StatusOK, statsPayload(stats))
}

func statsPayload(stats *db.MappingStats) map[string]any {
	types := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	statuses := make([]string, 0, len(statusOrder))
	for _, st := range statusOrder {
		statuses = append(statuses, string(st))
	}

	matrix := map[string]map[string]int64{}
	totalsRow := map[string]int64{}
	for _, st := range statusOrder {
		totalsRow[string(st)] = 0
	}
	for _, t := range types {
		row := map[string]int64{}
		for _, st := range statusOrder {
			count := stats.Matrix[models.EntityType(t)][st]
			row[string(st)] = count
			totalsRow[string(st)] += count
		}
		matrix[t] = row
	}

	byType := make(map[string]int64, len(stats.ByType))
	for t, count := range stats.ByType {
		byType[string(t)] = count
	}
	byStatus := make(map[string]int64, len(stats.ByStatus))
	for st, count := range stats.ByStatus {
		byStatus[string(st)] = count
	}

	return map[string]any{
		"total":      stats.Total,
		"by_type":    byType,
		"by_status":  byStatus,
		"statuses":   statuses,
		"types":      types,
		"matrix":     matrix,
		"totals_row": totalsRow,
	}
}
