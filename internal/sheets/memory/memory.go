package memory

import (
	"context"
	"sync"

	"bossweek/internal/core"
	"bossweek/internal/sheets"
)

var _ sheets.ReportWriter = (*Store)(nil)

// Store keeps exported reports in memory, for tests and dry runs.
type Store struct {
	mu      sync.Mutex
	reports []core.WeekReport
}

func New() *Store {
	return &Store{}
}

func (s *Store) WriteWeekReport(_ context.Context, rep core.WeekReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

// Reports returns every report written so far, oldest first.
func (s *Store) Reports() []core.WeekReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.WeekReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// Latest returns the last report written for week.
func (s *Store) Latest(week core.WeekKey) (core.WeekReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].Week == week {
			return s.reports[i], true
		}
	}
	return core.WeekReport{}, false
}
