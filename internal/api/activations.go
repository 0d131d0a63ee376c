package api

import (
	"net/http"
	"strconv"

	"github.com/verdancy/verdant-core/internal/run"
)

const defaultActivationLimit = 100

// handleListActivations returns activation history, newest first.
// Filters: solenoid_id, schedule_id, status, limit.
func (s *Server) handleListActivations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := run.ListFilter{
		SolenoidID: q.Get("solenoid_id"),
		ScheduleID: q.Get("schedule_id"),
		Limit:      defaultActivationLimit,
	}

	if raw := q.Get("status"); raw != "" {
		status := run.Status(raw)
		if !validStatus(status) {
			writeBadRequest(w, "unknown status: "+raw)
			return
		}
		filter.Status = status
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeBadRequest(w, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = n
	}

	activations, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list activations", "error", err)
		writeInternalError(w, "failed to list activations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activations": activations,
		"count":       len(activations),
	})
}

func validStatus(status run.Status) bool {
	for _, s := range run.AllStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
