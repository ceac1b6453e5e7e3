package rollup

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossweek/internal/core"
	"bossweek/internal/storage"
)

type fakeSource struct {
	mu       sync.Mutex
	records  []core.CompletionRecord
	rev      int64
	written  int64
	snapshot int
	err      error
}

func (f *fakeSource) Snapshot(context.Context) ([]core.CompletionRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	f.snapshot++
	return append([]core.CompletionRecord(nil), f.records...), f.rev, nil
}

func (f *fakeSource) Revision(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev, nil
}

func (f *fakeSource) ProjectionRevision(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written, nil
}

func (f *fakeSource) SetProjectionRevision(_ context.Context, rev int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = rev
	return nil
}

func (f *fakeSource) toggle(week core.WeekKey, entity, task string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.Week == week && r.Entity == entity && r.Task == task {
			f.records[i].Checked = !r.Checked
		}
	}
	f.rev++
}

const (
	wa core.WeekKey = "2025-36"
	wb core.WeekKey = "2025-37"
)

// Two entities, three tasks, two weeks.
func syntheticLedger() *fakeSource {
	rec := func(w core.WeekKey, e, t string, p int64, done bool) core.CompletionRecord {
		return core.CompletionRecord{Week: w, Entity: e, Task: t, Price: p, Checked: done}
	}
	return &fakeSource{rev: 1, written: -1, records: []core.CompletionRecord{
		rec(wa, "A", "Lucid", 100, true),
		rec(wa, "A", "Will", 300, true),
		rec(wa, "A", "Seren", 1000, false),
		rec(wa, "B", "Lucid", 100, true),
		rec(wa, "B", "Will", 300, false),
		rec(wb, "A", "Lucid", 120, true),
		rec(wb, "A", "Seren", 1000, true),
		rec(wb, "B", "Lucid", 120, false),
		rec(wb, "B", "Will", 300, true),
	}}
}

func TestAggregatesOnSyntheticLedger(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(syntheticLedger(), "")

	weekly, err := e.WeeklyTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.WeekTotal{{Week: wa, Total: 500}, {Week: wb, Total: 1420}}, weekly)

	ents, err := e.EntityTotals(ctx, wa)
	require.NoError(t, err)
	assert.Equal(t, []core.EntityTotal{{Entity: "A", Total: 400}, {Entity: "B", Total: 100}}, ents)

	tasks, err := e.TaskTotals(ctx, wb)
	require.NoError(t, err)
	assert.Equal(t, []core.TaskTotal{{Task: "Seren", Total: 1000}, {Task: "Will", Total: 300}, {Task: "Lucid", Total: 120}}, tasks)

	all, err := e.TaskTotalsAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.TaskTotal{{Task: "Seren", Total: 1000}, {Task: "Will", Total: 600}, {Task: "Lucid", Total: 320}}, all)

	grand, err := e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1920), grand)

	rates, err := e.CompletionRates(ctx, wa)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, core.CompletionRate{Entity: "A", Done: 2, Total: 3, Rate: 2.0 / 3.0}, rates[0])
	assert.Equal(t, core.CompletionRate{Entity: "B", Done: 1, Total: 2, Rate: 0.5}, rates[1])

	series, err := e.EntitySeries(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []core.SeriesPoint{{Week: wa, Total: 100}, {Week: wb, Total: 300}}, series)
}

func TestToggleChangesOnlyAffectedAggregates(t *testing.T) {
	ctx := context.Background()
	src := syntheticLedger()
	e := NewEngine(src, "")

	beforeWeekly, err := e.WeeklyTotals(ctx)
	require.NoError(t, err)
	beforeA, err := e.EntityTotals(ctx, wa)
	require.NoError(t, err)
	beforeB, err := e.EntityTotals(ctx, wb)
	require.NoError(t, err)

	src.toggle(wb, "B", "Lucid")

	afterWeekly, err := e.WeeklyTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeWeekly[0], afterWeekly[0], "other week untouched")
	assert.Equal(t, beforeWeekly[1].Total+120, afterWeekly[1].Total)

	afterA, err := e.EntityTotals(ctx, wa)
	require.NoError(t, err)
	assert.Equal(t, beforeA, afterA)

	afterB, err := e.EntityTotals(ctx, wb)
	require.NoError(t, err)
	assert.Equal(t, beforeB[0], afterB[0], "entity A unchanged")
	assert.Equal(t, beforeB[1].Total+120, afterB[1].Total)

	grand, err := e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2040), grand)
}

func TestEmptyLedgerYieldsEmptyAggregates(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&fakeSource{}, "")

	weekly, err := e.WeeklyTotals(ctx)
	require.NoError(t, err)
	assert.Empty(t, weekly)
	ents, err := e.EntityTotals(ctx, wa)
	require.NoError(t, err)
	assert.Empty(t, ents)
	tasks, err := e.TaskTotalsAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	grand, err := e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, grand)
	rates, err := e.CompletionRates(ctx, wa)
	require.NoError(t, err)
	assert.Empty(t, rates)
	rep, err := e.Report(ctx, wa)
	require.NoError(t, err)
	assert.Zero(t, rep.Total)
}

func TestProjectionRebuildsOnlyWhenStale(t *testing.T) {
	ctx := context.Background()
	src := syntheticLedger()
	e := NewEngine(src, "")

	_, ok := e.Marker()
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		_, err := e.GrandTotal(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.snapshot)

	src.toggle(wa, "B", "Will")
	_, err := e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.snapshot)

	m, ok := e.Marker()
	require.True(t, ok)
	assert.Equal(t, int64(2), m.Revision)

	_, err = e.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, src.snapshot)
}

func TestSourceErrorsSurface(t *testing.T) {
	src := &fakeSource{rev: 1, err: errors.New("disk on fire")}
	_, err := NewEngine(src, "").WeeklyTotals(context.Background())
	require.ErrorContains(t, err, "disk on fire")
}

func TestParquetProjectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.parquet")
	src := syntheticLedger()

	m, err := NewEngine(src, path).Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, src.rev, src.written)
	assert.Equal(t, src.rev, m.Revision)

	reopened := NewEngine(src, path)
	require.NoError(t, reopened.Open(ctx))
	_, ok := reopened.Marker()
	require.True(t, ok, "fresh file is loaded")

	grand, err := reopened.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1920), grand)
	assert.Equal(t, 1, src.snapshot, "no rebuild for a fresh file")

	src.toggle(wa, "A", "Lucid")
	stale := NewEngine(src, path)
	require.NoError(t, stale.Open(ctx))
	_, ok = stale.Marker()
	assert.False(t, ok, "stale file is ignored")
}

func TestEngineOverLedger(t *testing.T) {
	ctx := context.Background()
	l, err := storage.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	e := NewEngine(l, filepath.Join(t.TempDir(), "stats.parquet"))
	require.NoError(t, e.Open(ctx))

	_, err = l.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, wa)
	require.NoError(t, err)
	_, err = l.AddEntityToWeek(ctx, wa, "A")
	require.NoError(t, err)

	grand, err := e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, grand)

	_, err = l.ToggleCompletion(ctx, wa, "A", "Lucid")
	require.NoError(t, err)
	grand, err = e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), grand)

	_, err = l.UpdatePrice(ctx, "Lucid", 500, wb, "")
	require.NoError(t, err)
	grand, err = e.GrandTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), grand, "later price edits never change history")
}
