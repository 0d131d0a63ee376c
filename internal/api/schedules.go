package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/schedule"
	"github.com/verdancy/verdant-core/internal/solenoid"
)

// scheduleRequest is the payload for POST /schedules and PUT /schedules/{id}.
type scheduleRequest struct {
	Name       string        `json:"name"`
	TargetType string        `json:"target_type"`
	TargetID   string        `json:"target_id"`
	Slots      []slotRequest `json:"slots"`
	Enabled    *bool         `json:"enabled"`
}

type slotRequest struct {
	ID              string   `json:"id"`
	Start           string   `json:"start"`
	DurationMinutes int      `json:"duration_minutes"`
	Days            []string `json:"days"`
}

func (req *scheduleRequest) toSchedule(id string) *schedule.Schedule {
	s := &schedule.Schedule{
		ID:         id,
		Name:       req.Name,
		TargetType: schedule.TargetType(req.TargetType),
		TargetID:   req.TargetID,
		Enabled:    true,
	}
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	for _, sr := range req.Slots {
		slot := schedule.TimeSlot{
			ID:              sr.ID,
			Start:           sr.Start,
			DurationMinutes: sr.DurationMinutes,
		}
		if slot.ID == "" {
			slot.ID = schedule.GenerateID()
		}
		for _, d := range sr.Days {
			slot.Days = append(slot.Days, schedule.Weekday(d))
		}
		s.Slots = append(s.Slots, slot)
	}
	return s
}

// checkTarget verifies the schedule's target solenoid or group exists.
func (s *Server) checkTarget(r *http.Request, sched *schedule.Schedule) error {
	switch sched.TargetType {
	case schedule.TargetSolenoid:
		if _, err := s.solenoids.Get(r.Context(), sched.TargetID); err != nil {
			if errors.Is(err, solenoid.ErrNotFound) {
				return schedule.ErrTargetNotFound
			}
			return err
		}
	case schedule.TargetGroup:
		if _, err := s.groups.GetByID(r.Context(), sched.TargetID); err != nil {
			if errors.Is(err, solenoid.ErrGroupNotFound) {
				return schedule.ErrTargetNotFound
			}
			return err
		}
	}
	return nil
}

// handleListSchedules returns all schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list schedules", "error", err)
		writeInternalError(w, "failed to list schedules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// handleCreateSchedule creates a new schedule. Slots without an ID are
// assigned one.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sched := req.toSchedule(schedule.GenerateID())

	if err := schedule.Validate(sched); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := s.checkTarget(r, sched); err != nil {
		s.writeScheduleError(w, err)
		return
	}

	if err := s.schedules.Create(r.Context(), sched); err != nil {
		s.writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sched)
}

// handleGetSchedule returns one schedule by ID.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleUpdateSchedule replaces a schedule. Disabling a schedule
// cancels any watering it started.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	ctx := r.Context()

	old, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}

	sched := req.toSchedule(id)

	if err := schedule.Validate(sched); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := s.checkTarget(r, sched); err != nil {
		s.writeScheduleError(w, err)
		return
	}

	if err := s.schedules.Update(ctx, sched); err != nil {
		s.writeScheduleError(w, err)
		return
	}

	if old.Enabled && !sched.Enabled {
		if n, err := s.control.CancelSchedule(ctx, id); err != nil {
			s.logger.Error("failed to cancel watering for disabled schedule",
				"id", id, "cancelled", n, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, sched)
}

// handleDeleteSchedule removes a schedule, cancelling any watering it
// started first.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if n, err := s.control.CancelSchedule(ctx, id); err != nil {
		s.logger.Error("failed to cancel schedule watering before delete",
			"id", id, "cancelled", n, "error", err)
		writeInternalError(w, "failed to stop active watering")
		return
	}

	if err := s.schedules.Delete(ctx, id); err != nil {
		s.writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// runScheduleRequest is the payload for POST /schedules/{id}/run.
// SlotID is optional; the first slot is used when omitted.
type runScheduleRequest struct {
	SlotID string `json:"slot_id"`
}

// handleRunSchedule fires a schedule immediately, outside its normal
// recurrence. The resulting activations carry a manual cause.
func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	var req runScheduleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	started, err := s.control.RunScheduleNow(r.Context(), chi.URLParam(r, "id"), req.SlotID)
	if err != nil {
		if errors.Is(err, run.ErrAlreadyActive) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "already_active"})
			return
		}
		s.writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "started",
		"activations": started,
	})
}

// writeScheduleError maps schedule domain errors onto HTTP responses.
func (s *Server) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeNotFound(w, "schedule not found")
	case errors.Is(err, schedule.ErrExists):
		writeConflict(w, err.Error())
	case errors.Is(err, schedule.ErrTargetNotFound):
		writeValidationError(w, err)
	case errors.Is(err, schedule.ErrInvalid),
		errors.Is(err, schedule.ErrInvalidName),
		errors.Is(err, schedule.ErrInvalidTarget),
		errors.Is(err, schedule.ErrInvalidSlot),
		errors.Is(err, schedule.ErrSlotOverlap):
		writeValidationError(w, err)
	case errors.Is(err, solenoid.ErrNotFound):
		writeValidationError(w, err)
	default:
		s.logger.Error("schedule operation failed", "error", err)
		writeInternalError(w, "internal error")
	}
}
