package rollup

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"bossweek/internal/core"
)

// Source is the slice of the ledger the engine reads from.
type Source interface {
	Snapshot(ctx context.Context) ([]core.CompletionRecord, int64, error)
	Revision(ctx context.Context) (int64, error)
	ProjectionRevision(ctx context.Context) (int64, error)
	SetProjectionRevision(ctx context.Context, rev int64) error
}

type Engine struct {
	src  Source
	path string
	now  func() time.Time

	syncMu sync.Mutex // serializes rebuilds
	mu     sync.RWMutex
	proj   *Projection
}

// NewEngine builds an engine over src. When path is empty the projection
// lives in memory only.
func NewEngine(src Source, path string) *Engine {
	return &Engine{src: src, path: path, now: time.Now}
}

// Open loads the persisted projection when it was written at the ledger's
// current revision. A stale or missing file is ignored; the first read
// rebuilds it.
func (e *Engine) Open(ctx context.Context) error {
	if e.path == "" {
		return nil
	}
	rev, err := e.src.Revision(ctx)
	if err != nil {
		return fmt.Errorf("open projection: %w", err)
	}
	written, err := e.src.ProjectionRevision(ctx)
	if err != nil {
		return fmt.Errorf("open projection: %w", err)
	}
	if written != rev {
		slog.InfoContext(ctx, "Projection file is stale", "component", "rollup", "file_revision", written, "ledger_revision", rev)
		return nil
	}
	var syncedAt time.Time
	if fi, err := os.Stat(e.path); err == nil {
		syncedAt = fi.ModTime()
	}
	p, err := readParquet(e.path, rev, syncedAt)
	if err != nil {
		// The file is only a cache; fall back to a rebuild.
		slog.WarnContext(ctx, "Ignoring unreadable projection", "component", "rollup", "path", e.path, "error", err)
		return nil
	}
	if p != nil {
		e.set(p)
		slog.InfoContext(ctx, "Projection loaded", "component", "rollup", "rows", p.Len(), "revision", rev)
	}
	return nil
}

// Resync rebuilds the projection from the ledger unconditionally.
func (e *Engine) Resync(ctx context.Context) (Marker, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	p, err := e.rebuild(ctx)
	if err != nil {
		return Marker{}, err
	}
	return p.marker, nil
}

func (e *Engine) rebuild(ctx context.Context) (*Projection, error) {
	records, rev, err := e.src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("resync projection: %w", err)
	}
	p := newProjection(records, rev, e.now())
	if e.path != "" {
		if err := p.writeParquet(e.path); err != nil {
			return nil, fmt.Errorf("resync projection: %w", err)
		}
		if err := e.src.SetProjectionRevision(ctx, rev); err != nil {
			return nil, fmt.Errorf("resync projection: %w", err)
		}
	}
	e.set(p)
	slog.InfoContext(ctx, "Projection resynced", "component", "rollup", "rows", p.Len(), "revision", rev)
	return p, nil
}

func (e *Engine) set(p *Projection) {
	e.mu.Lock()
	e.proj = p
	e.mu.Unlock()
}

func (e *Engine) get() *Projection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.proj
}

// Marker returns the marker of the current projection, if any.
func (e *Engine) Marker() (Marker, bool) {
	if p := e.get(); p != nil {
		return p.marker, true
	}
	return Marker{}, false
}

// fresh returns a projection built at the ledger's current revision,
// rebuilding when needed.
func (e *Engine) fresh(ctx context.Context) (*Projection, error) {
	rev, err := e.src.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger revision: %w", err)
	}
	if p := e.get(); p != nil && p.marker.Revision == rev {
		return p, nil
	}
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if p := e.get(); p != nil && p.marker.Revision >= rev {
		return p, nil
	}
	return e.rebuild(ctx)
}

// WeeklyTotals sums completed prices per week, oldest week first.
func (e *Engine) WeeklyTotals(ctx context.Context) ([]core.WeekTotal, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return weeklyTotals(p.rows), nil
}

// EntityTotals sums completed prices per entity for week, largest first.
func (e *Engine) EntityTotals(ctx context.Context, week core.WeekKey) ([]core.EntityTotal, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return entityTotals(p.rows, week), nil
}

// TaskTotals sums completed prices per task for week, largest first.
func (e *Engine) TaskTotals(ctx context.Context, week core.WeekKey) ([]core.TaskTotal, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return taskTotals(p.rows, func(r row) bool { return r.Checked && r.Week == string(week) }), nil
}

// TaskTotalsAll is TaskTotals across every week.
func (e *Engine) TaskTotalsAll(ctx context.Context) ([]core.TaskTotal, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return taskTotals(p.rows, func(r row) bool { return r.Checked }), nil
}

// GrandTotal sums every completed record.
func (e *Engine) GrandTotal(ctx context.Context) (int64, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return 0, err
	}
	return grandTotal(p.rows), nil
}

// CompletionRates reports done/total per entity for week, by entity name.
func (e *Engine) CompletionRates(ctx context.Context, week core.WeekKey) ([]core.CompletionRate, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return completionRates(p.rows, week), nil
}

// EntitySeries returns an entity's completed total for every week it has
// records in, oldest first. Weeks with nothing completed report zero.
func (e *Engine) EntitySeries(ctx context.Context, entity string) ([]core.SeriesPoint, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return nil, err
	}
	sums := map[string]int64{}
	for _, r := range p.rows {
		if r.Entity != entity {
			continue
		}
		if r.Checked {
			sums[r.Week] += r.Price
		} else if _, ok := sums[r.Week]; !ok {
			sums[r.Week] = 0
		}
	}
	out := make([]core.SeriesPoint, 0, len(sums))
	for w, total := range sums {
		out = append(out, core.SeriesPoint{Week: core.WeekKey(w), Total: total})
	}
	slices.SortFunc(out, func(a, b core.SeriesPoint) int { return cmp.Compare(a.Week, b.Week) })
	return out, nil
}

// Report gathers the aggregates of one week from a single projection.
func (e *Engine) Report(ctx context.Context, week core.WeekKey) (core.WeekReport, error) {
	p, err := e.fresh(ctx)
	if err != nil {
		return core.WeekReport{}, err
	}
	rep := core.WeekReport{
		Week:        week,
		GeneratedAt: e.now(),
		Cumulative:  grandTotal(p.rows),
		Entities:    entityTotals(p.rows, week),
		Tasks:       taskTotals(p.rows, func(r row) bool { return r.Checked && r.Week == string(week) }),
		Rates:       completionRates(p.rows, week),
	}
	for _, et := range rep.Entities {
		rep.Total += et.Total
	}
	return rep, nil
}

func weeklyTotals(rows []row) []core.WeekTotal {
	sums := map[string]int64{}
	for _, r := range rows {
		if r.Checked {
			sums[r.Week] += r.Price
		}
	}
	out := make([]core.WeekTotal, 0, len(sums))
	for w, total := range sums {
		out = append(out, core.WeekTotal{Week: core.WeekKey(w), Total: total})
	}
	slices.SortFunc(out, func(a, b core.WeekTotal) int { return cmp.Compare(a.Week, b.Week) })
	return out
}

func entityTotals(rows []row, week core.WeekKey) []core.EntityTotal {
	sums := sumBy(rows, func(r row) bool { return r.Checked && r.Week == string(week) }, func(r row) string { return r.Entity })
	out := make([]core.EntityTotal, 0, len(sums))
	for _, kv := range sums {
		out = append(out, core.EntityTotal{Entity: kv.key, Total: kv.total})
	}
	return out
}

func taskTotals(rows []row, match func(row) bool) []core.TaskTotal {
	sums := sumBy(rows, match, func(r row) string { return r.Task })
	out := make([]core.TaskTotal, 0, len(sums))
	for _, kv := range sums {
		out = append(out, core.TaskTotal{Task: kv.key, Total: kv.total})
	}
	return out
}

func grandTotal(rows []row) int64 {
	var total int64
	for _, r := range rows {
		if r.Checked {
			total += r.Price
		}
	}
	return total
}

func completionRates(rows []row, week core.WeekKey) []core.CompletionRate {
	byEntity := map[string]*core.CompletionRate{}
	for _, r := range rows {
		if r.Week != string(week) {
			continue
		}
		cr, ok := byEntity[r.Entity]
		if !ok {
			cr = &core.CompletionRate{Entity: r.Entity}
			byEntity[r.Entity] = cr
		}
		cr.Total++
		if r.Checked {
			cr.Done++
		}
	}
	out := make([]core.CompletionRate, 0, len(byEntity))
	for _, cr := range byEntity {
		cr.Rate = float64(cr.Done) / float64(cr.Total)
		out = append(out, *cr)
	}
	slices.SortFunc(out, func(a, b core.CompletionRate) int { return cmp.Compare(a.Entity, b.Entity) })
	return out
}

type keyTotal struct {
	key   string
	total int64
}

// sumBy groups matching rows and orders groups by total descending, then
// key ascending.
func sumBy(rows []row, match func(row) bool, key func(row) string) []keyTotal {
	sums := map[string]int64{}
	for _, r := range rows {
		if match(r) {
			sums[key(r)] += r.Price
		}
	}
	out := make([]keyTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, keyTotal{k, v})
	}
	slices.SortFunc(out, func(a, b keyTotal) int {
		if c := cmp.Compare(b.total, a.total); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	return out
}
