package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
)

// handleDiagnostics returns the coordinator's cumulative counters plus
// the current polling cadence.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	diag := s.coordinator.Diagnostics()
	writeJSON(w, http.StatusOK, map[string]any{
		"diagnostics":           diag,
		"poll_interval_seconds": int(s.coordinator.Interval() / time.Second),
		"websocket_clients":     s.hub.ClientCount(),
	})
}

// handleGetPollInterval returns the current poll interval.
func (s *Server) handleGetPollInterval(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"seconds": int(s.coordinator.Interval() / time.Second),
	})
}

// pollIntervalRequest is the body for PUT /poll-interval.
type pollIntervalRequest struct {
	Seconds int `json:"seconds"`
}

// handleSetPollInterval changes the polling cadence at runtime. The
// value is clamped to the supported range and the effective value is
// returned.
func (s *Server) handleSetPollInterval(w http.ResponseWriter, r *http.Request) {
	var req pollIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Seconds <= 0 {
		writeBadRequest(w, "seconds must be positive")
		return
	}

	s.coordinator.SetInterval(time.Duration(req.Seconds) * time.Second)
	effective := int(s.coordinator.Interval() / time.Second)

	s.logger.Info("poll interval changed",
		"requested_seconds", req.Seconds,
		"effective_seconds", effective,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"seconds": effective,
		"clamped": effective != req.Seconds,
		"min":     config.MinPollIntervalSeconds,
		"max":     config.MaxPollIntervalSeconds,
	})
}
