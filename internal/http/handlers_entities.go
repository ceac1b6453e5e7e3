package http

import (
	"net/http"

	"bossweek/internal/core"
	"bossweek/internal/log"
)

type entityRequest struct {
	Name     string  `json:"name"`
	OCID     *string `json:"ocid,omitempty"`
	Level    *int    `json:"level,omitempty"`
	Job      *string `json:"job,omitempty"`
	Power    *int64  `json:"power,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

func (e entityRequest) profile() core.Profile {
	return core.Profile{OCID: e.OCID, Level: e.Level, Job: e.Job, Power: e.Power, ImageURL: e.ImageURL}
}

type createEntityResponse struct {
	Entity core.Entity `json:"entity"`
	JobID  string      `json:"job_id,omitempty"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.svc.Ledger().ListEntities(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, entities)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	e := core.Entity{Name: sanitizeInput(req.Name), Profile: req.profile()}
	jobID, err := s.svc.CreateEntity(r.Context(), e)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	stored, err := s.svc.Ledger().GetEntity(r.Context(), e.Name)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusCreated, createEntityResponse{Entity: stored, JobID: jobID})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Ledger().GetEntity(r.Context(), param(r, "entity"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// handlePatchEntity merges the provided attributes; absent fields are kept.
func (s *Server) handlePatchEntity(w http.ResponseWriter, r *http.Request) {
	name := param(r, "entity")
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	ctx := r.Context()
	if err := s.svc.Ledger().UpdateProfile(ctx, name, req.profile()); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	e, err := s.svc.Ledger().GetEntity(ctx, name)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ledger().DeleteEntity(r.Context(), param(r, "entity")); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshEntity schedules a lookup and returns immediately.
func (s *Server) handleRefreshEntity(w http.ResponseWriter, r *http.Request) {
	name := param(r, "entity")
	jobID, err := s.svc.RequestRefresh(r.Context(), name)
	if err != nil {
		fail(w, r, log.OpRefresh, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Profile refresh scheduled",
		log.FieldEntity, name, log.FieldJobID, jobID)
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "entity": name})
}
