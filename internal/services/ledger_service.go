package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"bossweek/internal/core"
	"bossweek/internal/lookup"
	"bossweek/internal/rollup"
	"bossweek/internal/sheets"
	"bossweek/internal/storage"
)

// ErrRefreshDisabled is returned when neither a publisher nor an in-process
// refresher is configured.
var ErrRefreshDisabled = errors.New("profile refresh is not configured")

// ErrExportDisabled is returned by ExportReport without a report writer.
var ErrExportDisabled = errors.New("report export is not configured")

// RefreshPublisher hands a refresh job to an out-of-process worker.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, name string) (string, error)
}

// LedgerService orchestrates ledger operations for the HTTP API and the CLI.
// It owns the clock and the week anchor, so "current week" means the same
// thing everywhere.
type LedgerService struct {
	ledger    *storage.Ledger
	engine    *rollup.Engine
	refresher *lookup.Refresher
	publisher RefreshPublisher
	reports   sheets.ReportWriter
	anchor    time.Weekday
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*LedgerService)

func WithRefresher(r *lookup.Refresher) Option {
	return func(s *LedgerService) { s.refresher = r }
}

// WithPublisher routes refresh requests through a message broker. It takes
// precedence over the in-process refresher.
func WithPublisher(p RefreshPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithReportWriter(w sheets.ReportWriter) Option {
	return func(s *LedgerService) { s.reports = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithAnchor(d time.Weekday) Option {
	return func(s *LedgerService) { s.anchor = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *LedgerService) { s.log = l }
}

func NewLedgerService(ledger *storage.Ledger, engine *rollup.Engine, opts ...Option) *LedgerService {
	s := &LedgerService{
		ledger: ledger,
		engine: engine,
		anchor: core.DefaultAnchor,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "service")
	return s
}

func (s *LedgerService) Ledger() *storage.Ledger { return s.ledger }

func (s *LedgerService) Engine() *rollup.Engine { return s.engine }

func (s *LedgerService) Anchor() time.Weekday { return s.anchor }

// CurrentWeek is the week containing the service clock's now.
func (s *LedgerService) CurrentWeek() core.WeekKey {
	return core.WeekKeyFor(s.now(), s.anchor)
}

// ResolveWeek maps "" and "current" to the current week and normalizes
// everything else, accepting the legacy unpadded form.
func (s *LedgerService) ResolveWeek(raw string) (core.WeekKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "current") {
		return s.CurrentWeek(), nil
	}
	return core.NormalizeWeekKey(raw)
}

// EnsureCurrentWeek rolls the ledger into the current week if needed.
func (s *LedgerService) EnsureCurrentWeek(ctx context.Context) (core.RolloverResult, error) {
	return s.EnsureWeek(ctx, s.CurrentWeek())
}

func (s *LedgerService) EnsureWeek(ctx context.Context, week core.WeekKey) (core.RolloverResult, error) {
	res, err := s.ledger.EnsureWeek(ctx, week)
	if err != nil {
		return res, fmt.Errorf("ensure week %s: %w", week, err)
	}
	return res, nil
}

// prepareWeek rolls the ledger into w first when w is the current week, so
// a write never seeds a week that was not carried forward yet.
func (s *LedgerService) prepareWeek(ctx context.Context, w core.WeekKey) error {
	if w != s.CurrentWeek() {
		return nil
	}
	_, err := s.EnsureWeek(ctx, w)
	return err
}

// CreateEntity registers a character, seeds the current week with every
// catalog task and asks for a profile refresh. The returned job id is empty
// when refresh is not configured; a failed refresh request never fails the
// creation.
func (s *LedgerService) CreateEntity(ctx context.Context, e core.Entity) (string, error) {
	e.Name = strings.TrimSpace(e.Name)
	week := s.CurrentWeek()
	if err := s.prepareWeek(ctx, week); err != nil {
		return "", err
	}
	if err := s.ledger.CreateEntity(ctx, e); err != nil {
		return "", err
	}
	if _, err := s.ledger.AddEntityToWeek(ctx, week, e.Name); err != nil {
		return "", fmt.Errorf("seed week %s: %w", week, err)
	}

	jobID, err := s.RequestRefresh(ctx, e.Name)
	switch {
	case errors.Is(err, ErrRefreshDisabled):
		return "", nil
	case err != nil:
		s.log.WarnContext(ctx, "Profile refresh request failed", "entity", e.Name, "error", err)
		return "", nil
	}
	return jobID, nil
}

// RequestRefresh schedules a profile lookup for an existing entity and
// returns the job id. The lookup never runs under the caller's context.
func (s *LedgerService) RequestRefresh(ctx context.Context, name string) (string, error) {
	if _, err := s.ledger.GetEntity(ctx, name); err != nil {
		return "", err
	}
	if s.publisher != nil {
		jobID, err := s.publisher.PublishRefreshRequest(ctx, name)
		if err == nil {
			return jobID, nil
		}
		if s.refresher == nil {
			return "", fmt.Errorf("publish refresh: %w", err)
		}
		s.log.WarnContext(ctx, "Publishing refresh failed, running in process", "entity", name, "error", err)
	}
	if s.refresher == nil {
		return "", ErrRefreshDisabled
	}
	jobID, _ := s.refresher.Submit(ctx, name)
	return jobID, nil
}

// RefreshAll looks every entity up synchronously using the in-process
// refresher.
func (s *LedgerService) RefreshAll(ctx context.Context) ([]lookup.Result, error) {
	if s.refresher == nil {
		return nil, ErrRefreshDisabled
	}
	entities, err := s.ledger.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return s.refresher.RefreshAll(ctx, names), nil
}

// AddTask adds a catalog entry whose price history starts at week, or the
// current week when week is empty.
func (s *LedgerService) AddTask(ctx context.Context, t core.Task, week string) (bool, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return false, err
	}
	t.Name = strings.TrimSpace(t.Name)
	return s.ledger.AddTask(ctx, t, w)
}

// UpdatePrice changes a task's price from appliedFrom onward; empty means
// the current week.
func (s *LedgerService) UpdatePrice(ctx context.Context, task string, price int64, appliedFrom, note string) (int64, error) {
	w, err := s.ResolveWeek(appliedFrom)
	if err != nil {
		return 0, err
	}
	if err := s.prepareWeek(ctx, s.CurrentWeek()); err != nil {
		return 0, err
	}
	return s.ledger.UpdatePrice(ctx, task, price, w, note)
}

// Snapshot returns the weekly view. Asking for the current week rolls the
// ledger over first.
func (s *LedgerService) Snapshot(ctx context.Context, week string) (core.WeekSnapshot, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return core.WeekSnapshot{}, err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return core.WeekSnapshot{}, err
	}
	return s.ledger.WeekSnapshot(ctx, w)
}

func (s *LedgerService) Toggle(ctx context.Context, week, entity, task string) (bool, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return false, err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return false, err
	}
	return s.ledger.ToggleCompletion(ctx, w, entity, task)
}

func (s *LedgerService) SetCompletion(ctx context.Context, week, entity, task string, checked bool) error {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return err
	}
	return s.ledger.SetCompletion(ctx, w, entity, task, checked)
}

func (s *LedgerService) Assign(ctx context.Context, week, entity, task string) (bool, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return false, err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return false, err
	}
	return s.ledger.AssignTask(ctx, w, entity, task)
}

func (s *LedgerService) Unassign(ctx context.Context, week, entity, task string) error {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return err
	}
	return s.ledger.UnassignTask(ctx, w, entity, task)
}

func (s *LedgerService) AddEntityToWeek(ctx context.Context, week, entity string) (int64, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return 0, err
	}
	if _, err := s.ledger.GetEntity(ctx, entity); err != nil {
		return 0, err
	}
	if err := s.prepareWeek(ctx, w); err != nil {
		return 0, err
	}
	return s.ledger.AddEntityToWeek(ctx, w, entity)
}

// Report builds the aggregates of one week.
func (s *LedgerService) Report(ctx context.Context, week string) (core.WeekReport, error) {
	w, err := s.ResolveWeek(week)
	if err != nil {
		return core.WeekReport{}, err
	}
	return s.engine.Report(ctx, w)
}

// ExportReport builds the report of week and hands it to the configured
// writer.
func (s *LedgerService) ExportReport(ctx context.Context, week string) (core.WeekReport, error) {
	if s.reports == nil {
		return core.WeekReport{}, ErrExportDisabled
	}
	rep, err := s.Report(ctx, week)
	if err != nil {
		return core.WeekReport{}, err
	}
	if err := s.reports.WriteWeekReport(ctx, rep); err != nil {
		return rep, fmt.Errorf("export week %s: %w", rep.Week, err)
	}
	s.log.InfoContext(ctx, "Week report exported", "week", rep.Week, "total", rep.Total)
	return rep, nil
}

// Import applies a legacy JSON document. New catalog prices take effect
// from the current week.
func (s *LedgerService) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	if err := s.prepareWeek(ctx, s.CurrentWeek()); err != nil {
		return ImportReport{}, err
	}
	rep, err := NewImporter(s.ledger, s.CurrentWeek).Import(ctx, r)
	if err != nil {
		return rep, err
	}
	s.log.InfoContext(ctx, "Import finished",
		"tasks", rep.Applied.Tasks, "entities", rep.Applied.Entities,
		"records", rep.Applied.Records, "skipped", rep.Skipped)
	return rep, nil
}

// Status summarizes the ledger and its projection.
type Status struct {
	Week       core.WeekKey   `json:"week"`
	Revision   int64          `json:"revision"`
	Projection *rollup.Marker `json:"projection,omitempty"`
	Counts     storage.Counts `json:"counts"`
}

func (s *LedgerService) Status(ctx context.Context) (Status, error) {
	st := Status{Week: s.CurrentWeek()}
	rev, err := s.ledger.Revision(ctx)
	if err != nil {
		return st, err
	}
	st.Revision = rev
	if st.Counts, err = s.ledger.Counts(ctx); err != nil {
		return st, err
	}
	if m, ok := s.engine.Marker(); ok {
		st.Projection = &m
	}
	return st, nil
}
