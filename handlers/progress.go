package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const minStreamInterval = 250 * time.Millisecond

// HandleProgressStream emits mapping stats plus the latest job as
// server-sent events until the client disconnects. Errors are reported as
// error events and the stream stays open.
func (s *Server) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	interval := 2 * time.Second
	if raw := r.URL.Query().Get("interval"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			interval = time.Duration(parsed * float64(time.Second))
		}
	}
	if interval < minStreamInterval {
		interval = minStreamInterval
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Accel-Buffering", "no")

	// Prime the connection so proxies start streaming immediately.
	fmt.Fprint(w, ": init\n\n")
	fmt.Fprint(w, "retry: 2000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		s.writeStatsEvent(ctx, w)
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) writeStatsEvent(ctx context.Context, w io.Writer) {
	payload, err := s.progressSnapshot(ctx)
	if err == nil {
		var data []byte
		data, err = json.Marshal(payload)
		if err == nil {
			fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data)
			return
		}
	}

	s.logger.WithError(err).Error("Failed to build progress snapshot")
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
}

func (s *Server) progressSnapshot(ctx context.Context) (map[string]any, error) {
	stats, err := s.entities.GetMappingStats(ctx)
	if err != nil {
		return nil, err
	}
	payload := statsPayload(stats)

	latest, err := s.jobs.Latest(ctx)
	if err != nil {
		return nil, err
	}
	var jobInfo map[string]any
	if job, ok := latest.Get(); ok {
		jobInfo = map[string]any{
			"id":            job.ID,
			"status":        job.Status,
			"current_stage": job.CurrentStage,
			"meta":          job.Meta,
		}
	}
	payload["job"] = jobInfo
	return payload, nil
}
