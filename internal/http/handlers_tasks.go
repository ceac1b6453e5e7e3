package http

import (
	"net/http"

	"bossweek/internal/core"
	"bossweek/internal/log"
)

type addTaskRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	// Week the price history starts at; empty means the current week.
	Week string `json:"week,omitempty"`
}

type updatePriceRequest struct {
	Price       *int64 `json:"price"`
	AppliedFrom string `json:"applied_from,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Ledger().ListTasks(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

// handleAddTask is insert-if-absent: an existing task answers 200 with
// created=false and keeps its price.
func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	t := core.Task{Name: sanitizeInput(req.Name), Price: req.Price}
	created, err := s.svc.AddTask(r.Context(), t, req.Week)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]any{"task": t, "created": created})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Ledger().GetTask(r.Context(), param(r, "task"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// handleDeleteTask removes the task and every record of it.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ledger().DeleteTask(r.Context(), param(r, "task")); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetireTask drops the task from the catalog but keeps its history.
func (s *Server) handleRetireTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ledger().RetireTask(r.Context(), param(r, "task")); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	task := param(r, "task")
	var req updatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	if req.Price == nil {
		fail(w, r, log.OpUpdate, &core.ValidationError{Field: "price", Message: "price is required"})
		return
	}
	n, err := s.svc.UpdatePrice(r.Context(), task, *req.Price, req.AppliedFrom, sanitizeInput(req.Note))
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"task": task, "price": *req.Price, "repriced": n})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.Ledger().PriceHistory(r.Context(), param(r, "task"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	if history == nil {
		history = []core.PriceChange{}
	}
	respondJSON(w, http.StatusOK, history)
}
