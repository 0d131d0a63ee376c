package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/scheduler"
	"github.com/verdancy/verdant-core/internal/solenoid"
)

// createSolenoidRequest is the payload for POST /solenoids.
type createSolenoidRequest struct {
	Name      string `json:"name"`
	SwitchRef string `json:"switch_ref"`
}

// updateSolenoidRequest is the payload for PATCH /solenoids/{id}.
// Nil fields are left unchanged.
type updateSolenoidRequest struct {
	Name      *string `json:"name"`
	SwitchRef *string `json:"switch_ref"`
}

// handleListSolenoids returns all solenoids.
func (s *Server) handleListSolenoids(w http.ResponseWriter, r *http.Request) {
	solenoids, err := s.solenoids.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list solenoids", "error", err)
		writeInternalError(w, "failed to list solenoids")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"solenoids": solenoids,
		"count":     len(solenoids),
	})
}

// handleCreateSolenoid creates a new solenoid.
func (s *Server) handleCreateSolenoid(w http.ResponseWriter, r *http.Request) {
	var req createSolenoidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sol := &solenoid.Solenoid{
		Name:      req.Name,
		SwitchRef: req.SwitchRef,
	}

	if err := s.solenoids.Create(r.Context(), sol); err != nil {
		s.writeSolenoidError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sol)
}

// handleGetSolenoid returns one solenoid by ID.
func (s *Server) handleGetSolenoid(w http.ResponseWriter, r *http.Request) {
	sol, err := s.solenoids.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSolenoidError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// handleUpdateSolenoid applies a partial update.
func (s *Server) handleUpdateSolenoid(w http.ResponseWriter, r *http.Request) {
	var req updateSolenoidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sol, err := s.solenoids.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSolenoidError(w, err)
		return
	}

	if req.Name != nil {
		sol.Name = *req.Name
	}
	if req.SwitchRef != nil {
		sol.SwitchRef = *req.SwitchRef
	}

	if err := s.solenoids.Update(r.Context(), sol); err != nil {
		s.writeSolenoidError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sol)
}

// handleDeleteSolenoid removes a solenoid. With ?cascade=true,
// schedules targeting it are disabled and group memberships removed;
// without it, a referenced solenoid is a conflict.
func (s *Server) handleDeleteSolenoid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	// Stop any watering before the record disappears.
	if err := s.control.CancelSolenoid(ctx, id); err != nil && !errors.Is(err, solenoid.ErrNotFound) {
		s.logger.Error("failed to cancel watering before delete", "id", id, "error", err)
		writeInternalError(w, "failed to stop active watering")
		return
	}

	var err error
	if r.URL.Query().Get("cascade") == "true" {
		err = s.solenoids.DeleteCascade(ctx, id)
	} else {
		err = s.solenoids.Delete(ctx, id)
	}
	if err != nil {
		s.writeSolenoidError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// controlRequest is the optional payload for POST /solenoids/{id}/control.
type controlRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

// handleControlSolenoid starts or stops a valve manually. The action
// comes from the ?action query parameter: turn_on or turn_off.
// Controlling a valve already in the requested state is not an error.
func (s *Server) handleControlSolenoid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := r.URL.Query().Get("action")

	var req controlRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	switch action {
	case "turn_on":
		a, err := s.control.StartSolenoid(r.Context(), id, time.Duration(req.DurationMinutes)*time.Minute)
		if errors.Is(err, run.ErrAlreadyActive) {
			holder, _ := s.tracker.ActiveOn(id)
			writeJSON(w, http.StatusOK, map[string]any{
				"status":     "already_active",
				"activation": holder,
			})
			return
		}
		if err != nil {
			s.writeSolenoidError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "started", "activation": a})

	case "turn_off":
		a, err := s.control.StopSolenoid(r.Context(), id)
		if errors.Is(err, scheduler.ErrNothingRunning) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "idle"})
			return
		}
		if err != nil {
			s.writeSolenoidError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "activation": a})

	default:
		writeBadRequest(w, "action must be turn_on or turn_off")
	}
}

// writeSolenoidError maps solenoid domain errors onto HTTP responses.
func (s *Server) writeSolenoidError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, solenoid.ErrNotFound):
		writeNotFound(w, "solenoid not found")
	case errors.Is(err, solenoid.ErrExists):
		writeConflict(w, err.Error())
	case errors.Is(err, solenoid.ErrInUse):
		writeConflict(w, "solenoid is referenced by a group or schedule")
	case errors.Is(err, solenoid.ErrInvalid),
		errors.Is(err, solenoid.ErrInvalidName),
		errors.Is(err, solenoid.ErrInvalidSwitchRef):
		writeValidationError(w, err)
	default:
		s.logger.Error("solenoid operation failed", "error", err)
		writeInternalError(w, "internal error")
	}
}
