package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdancy/verdant-core/internal/solenoid"
)

// groupRequest is the payload for POST /groups and PUT /groups/{id}.
// Members are solenoid IDs in watering order.
type groupRequest struct {
	Name    string   `json:"name"`
	Mode    string   `json:"mode"`
	Members []string `json:"members"`
}

func (req *groupRequest) toGroup(id string) *solenoid.Group {
	g := &solenoid.Group{
		ID:   id,
		Name: req.Name,
		Mode: solenoid.RunMode(req.Mode),
	}
	if g.Mode == "" {
		g.Mode = solenoid.RunModeConcurrent
	}
	for i, sid := range req.Members {
		g.Members = append(g.Members, solenoid.Member{SolenoidID: sid, Position: i})
	}
	return g
}

// handleListGroups returns all groups.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list groups", "error", err)
		writeInternalError(w, "failed to list groups")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// handleCreateGroup creates a new group.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g := req.toGroup(solenoid.GenerateID())

	if err := solenoid.ValidateGroup(g); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := solenoid.CheckSequentialMembership(r.Context(), s.groups, g); err != nil {
		s.writeGroupError(w, err)
		return
	}

	if err := s.groups.Create(r.Context(), g); err != nil {
		s.writeGroupError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, g)
}

// handleGetGroup returns one group by ID.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleUpdateGroup replaces a group's name, mode, and members.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g := req.toGroup(chi.URLParam(r, "id"))

	if err := solenoid.ValidateGroup(g); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := solenoid.CheckSequentialMembership(r.Context(), s.groups, g); err != nil {
		s.writeGroupError(w, err)
		return
	}

	if err := s.groups.Update(r.Context(), g); err != nil {
		s.writeGroupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// handleDeleteGroup removes a group, cancelling any watering it is
// doing first. A group still targeted by a schedule is a conflict.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if _, err := s.control.CancelGroup(ctx, id); err != nil && !errors.Is(err, solenoid.ErrGroupNotFound) {
		s.logger.Error("failed to cancel group watering before delete", "id", id, "error", err)
		writeInternalError(w, "failed to stop active watering")
		return
	}

	if err := s.groups.Delete(ctx, id); err != nil {
		s.writeGroupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// writeGroupError maps group domain errors onto HTTP responses.
func (s *Server) writeGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, solenoid.ErrGroupNotFound):
		writeNotFound(w, "group not found")
	case errors.Is(err, solenoid.ErrGroupExists):
		writeConflict(w, err.Error())
	case errors.Is(err, solenoid.ErrGroupInUse):
		writeConflict(w, "group is targeted by a schedule")
	case errors.Is(err, solenoid.ErrSequentialConflict):
		writeConflict(w, err.Error())
	case errors.Is(err, solenoid.ErrMemberNotFound):
		writeValidationError(w, err)
	case errors.Is(err, solenoid.ErrInvalidGroup),
		errors.Is(err, solenoid.ErrInvalidName):
		writeValidationError(w, err)
	default:
		s.logger.Error("group operation failed", "error", err)
		writeInternalError(w, "internal error")
	}
}
