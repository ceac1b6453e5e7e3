package http

import (
	"net/http"
	"strings"

	"bossweek/internal/core"
	"bossweek/internal/log"
)

// statsWeek resolves the week query parameter, defaulting to the current
// week.
func (s *Server) statsWeek(w http.ResponseWriter, r *http.Request) (core.WeekKey, bool) {
	week, err := s.svc.ResolveWeek(query(r, "week"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return "", false
	}
	return week, true
}

func (s *Server) handleWeeklyTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.Engine().WeeklyTotals(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (s *Server) handleEntityTotals(w http.ResponseWriter, r *http.Request) {
	week, ok := s.statsWeek(w, r)
	if !ok {
		return
	}
	totals, err := s.svc.Engine().EntityTotals(r.Context(), week)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

// handleTaskTotals reports one week, or every week with week=all.
func (s *Server) handleTaskTotals(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(query(r, "week"), "all") {
		totals, err := s.svc.Engine().TaskTotalsAll(r.Context())
		if err != nil {
			fail(w, r, log.OpRead, err)
			return
		}
		respondJSON(w, http.StatusOK, totals)
		return
	}
	week, ok := s.statsWeek(w, r)
	if !ok {
		return
	}
	totals, err := s.svc.Engine().TaskTotals(r.Context(), week)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (s *Server) handleGrandTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.svc.Engine().GrandTotal(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"total": total, "formatted": core.FormatMeso(total)})
}

func (s *Server) handleCompletionRates(w http.ResponseWriter, r *http.Request) {
	week, ok := s.statsWeek(w, r)
	if !ok {
		return
	}
	rates, err := s.svc.Engine().CompletionRates(r.Context(), week)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, rates)
}

func (s *Server) handleEntitySeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.svc.Engine().EntitySeries(r.Context(), param(r, "entity"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Report(r.Context(), query(r, "week"))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Engine().Resync(r.Context())
	if err != nil {
		fail(w, r, log.OpResync, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxImportBytes)
	rep, err := s.svc.Import(r.Context(), body)
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.ExportReport(r.Context(), query(r, "week"))
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
