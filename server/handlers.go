package server

import (
	"net/http"
	"strings"

	"github.com/teranos/waypoint/version"
)

// HandleHealth serves the health check with version info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	status := "ok"
	if s.getState() != ServerStateRunning {
		status = "draining"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Version:     info.Version,
		Commit:      info.CommitHash,
		BuildTime:   info.BuildTime,
		State:       s.getState().String(),
		Workers:     s.manager.Workers(),
		FeedClients: s.clientCount(),
	})
}

// HandleSystem reports scheduler load next to host memory
func (s *Server) HandleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.SystemMetrics())
}

// HandleStats serves a user's daily statistics
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing user query parameter")
		return
	}

	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		handleError(w, s.logger, err, "failed to look up user")
		return
	}

	days, err := s.store.ListDailyStatistics(r.Context(), userID)
	if err != nil {
		handleError(w, s.logger, err, "failed to list daily statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{User: userID, Days: days, Count: len(days)})
}
