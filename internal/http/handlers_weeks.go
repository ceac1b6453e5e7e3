package http

import (
	"net/http"
	"strconv"

	"bossweek/internal/core"
	"bossweek/internal/log"
	"bossweek/internal/storage"
)

func (s *Server) handleListWeeks(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Ledger().WeekKeys(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	if keys == nil {
		keys = []core.WeekKey{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"current": s.svc.CurrentWeek(), "weeks": keys})
}

// handleWeekSnapshot accepts a week key or "current".
func (s *Server) handleWeekSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), param(r, "week"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEnsureWeek(w http.ResponseWriter, r *http.Request) {
	week, err := s.svc.ResolveWeek(param(r, "week"))
	if err != nil {
		fail(w, r, log.OpRollover, err)
		return
	}
	res, err := s.svc.EnsureWeek(r.Context(), week)
	if err != nil {
		fail(w, r, log.OpRollover, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddEntityToWeek(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.AddEntityToWeek(r.Context(), param(r, "week"), param(r, "entity"))
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"added": n})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	created, err := s.svc.Assign(r.Context(), param(r, "week"), param(r, "entity"), param(r, "task"))
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]bool{"created": created})
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Unassign(r.Context(), param(r, "week"), param(r, "entity"), param(r, "task")); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	week, entity, task := param(r, "week"), param(r, "entity"), param(r, "task")
	checked, err := s.svc.Toggle(r.Context(), week, entity, task)
	if err != nil {
		fail(w, r, log.OpToggle, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"checked": checked})
}

func (s *Server) handleSetChecked(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Checked *bool `json:"checked"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, log.OpToggle, err)
		return
	}
	if req.Checked == nil {
		fail(w, r, log.OpToggle, &core.ValidationError{Field: "checked", Message: "checked is required"})
		return
	}
	if err := s.svc.SetCompletion(r.Context(), param(r, "week"), param(r, "entity"), param(r, "task"), *req.Checked); err != nil {
		fail(w, r, log.OpToggle, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"checked": *req.Checked})
}

// handleListRecords filters completion records by week, from, to, entity,
// task and checked query parameters.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	var f storage.RecordFilter
	for _, p := range []struct {
		name string
		dst  *core.WeekKey
	}{{"week", &f.Week}, {"from", &f.From}, {"to", &f.To}} {
		v := query(r, p.name)
		if v == "" {
			continue
		}
		k, err := s.svc.ResolveWeek(v)
		if err != nil {
			fail(w, r, log.OpRead, err)
			return
		}
		*p.dst = k
	}
	f.Entity = query(r, "entity")
	f.Task = query(r, "task")
	if v := query(r, "checked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(w, r, log.OpRead, &core.ValidationError{Field: "checked", Message: "checked must be a boolean"})
			return
		}
		f.Checked = &b
	}

	records, err := s.svc.Ledger().ListRecords(r.Context(), f)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	if records == nil {
		records = []core.CompletionRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
