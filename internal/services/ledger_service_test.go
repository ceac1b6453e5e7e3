package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossweek/internal/core"
	"bossweek/internal/lookup"
	"bossweek/internal/rollup"
	"bossweek/internal/sheets/memory"
	"bossweek/internal/storage"
)

const (
	lastWeek core.WeekKey = "2025-35"
	thisWeek core.WeekKey = "2025-36"
)

// Thursday 2025-09-04, the first day of 2025-36.
var thursday = time.Date(2025, time.September, 4, 9, 0, 0, 0, time.UTC)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	ledger *storage.Ledger
	engine *rollup.Engine
	svc    *LedgerService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	l, err := storage.NewSQLiteLedger(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	e := rollup.NewEngine(l, filepath.Join(dir, "stats.parquet"))
	opts = append([]Option{WithClock(func() time.Time { return thursday }), WithLogger(discard)}, opts...)
	return &testEnv{ledger: l, engine: e, svc: NewLedgerService(l, e, opts...)}
}

type stubPublisher struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (p *stubPublisher) PublishRefreshRequest(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.names = append(p.names, name)
	return "job-" + name, nil
}

type stubProvider struct {
	profile core.Profile
}

func (s stubProvider) Lookup(context.Context, string) (core.Profile, error) {
	return s.profile, nil
}

func TestResolveWeek(t *testing.T) {
	env := newTestEnv(t)

	for in, want := range map[string]core.WeekKey{
		"":        thisWeek,
		"current": thisWeek,
		"2025-7":  "2025-07",
		"2024-52": "2024-52",
	} {
		got, err := env.svc.ResolveWeek(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := env.svc.ResolveWeek("next tuesday")
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestCurrentWeekFollowsAnchor(t *testing.T) {
	// Wednesday 2025-09-03 still belongs to the week that started on Thursday 08-28.
	wed := thursday.AddDate(0, 0, -1)
	env := newTestEnv(t, WithClock(func() time.Time { return wed }))
	assert.Equal(t, lastWeek, env.svc.CurrentWeek())

	env = newTestEnv(t, WithClock(func() time.Time { return wed }), WithAnchor(time.Monday))
	assert.Equal(t, thisWeek, env.svc.CurrentWeek())
}

func TestCreateEntitySeedsCurrentWeekAndPublishesRefresh(t *testing.T) {
	ctx := context.Background()
	pub := &stubPublisher{}
	env := newTestEnv(t, WithPublisher(pub))

	_, err := env.svc.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, "")
	require.NoError(t, err)

	jobID, err := env.svc.CreateEntity(ctx, core.Entity{Name: " Alpha "})
	require.NoError(t, err)
	assert.Equal(t, "job-Alpha", jobID)
	assert.Equal(t, []string{"Alpha"}, pub.names)

	snap, err := env.ledger.WeekSnapshot(ctx, thisWeek)
	require.NoError(t, err)
	ew, ok := snap.Entity("Alpha")
	require.True(t, ok)
	assert.Equal(t, []core.TaskCheck{{Task: "Lucid", Price: 100}}, ew.Tasks)

	_, err = env.svc.CreateEntity(ctx, core.Entity{Name: "Alpha"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestCreateEntityWithoutRefresh(t *testing.T) {
	env := newTestEnv(t)

	jobID, err := env.svc.CreateEntity(context.Background(), core.Entity{Name: "Alpha"})
	require.NoError(t, err)
	assert.Empty(t, jobID)
}

func TestCreateEntityIgnoresPublishFailure(t *testing.T) {
	env := newTestEnv(t, WithPublisher(&stubPublisher{err: errors.New("broker down")}))

	jobID, err := env.svc.CreateEntity(context.Background(), core.Entity{Name: "Alpha"})
	require.NoError(t, err)
	assert.Empty(t, jobID)
}

func TestRequestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown entity", func(t *testing.T) {
		env := newTestEnv(t, WithPublisher(&stubPublisher{}))
		_, err := env.svc.RequestRefresh(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Alpha"}))
		_, err := env.svc.RequestRefresh(ctx, "Alpha")
		assert.ErrorIs(t, err, ErrRefreshDisabled)
	})

	t.Run("falls back to in-process refresher", func(t *testing.T) {
		env := newTestEnv(t)
		r := lookup.NewRefresher(stubProvider{profile: core.Profile{Level: core.Ptr(285), Job: core.Ptr("Bishop")}},
			env.ledger, time.Second, 2, discard)
		env.svc = NewLedgerService(env.ledger, env.engine,
			WithClock(func() time.Time { return thursday }),
			WithLogger(discard),
			WithPublisher(&stubPublisher{err: errors.New("broker down")}),
			WithRefresher(r))
		require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Alpha"}))

		jobID, err := env.svc.RequestRefresh(ctx, "Alpha")
		require.NoError(t, err)
		assert.NotEmpty(t, jobID)
		r.Wait()

		e, err := env.ledger.GetEntity(ctx, "Alpha")
		require.NoError(t, err)
		require.NotNil(t, e.Level)
		assert.Equal(t, 285, *e.Level)
		assert.Equal(t, "Bishop", *e.Job)
	})
}

type gatedProvider struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedProvider) Lookup(ctx context.Context, _ string) (core.Profile, error) {
	close(g.started)
	<-g.release
	return core.Profile{Level: core.Ptr(270)}, nil
}

func TestRefreshDoesNotResurrectDeletedEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	prov := gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	r := lookup.NewRefresher(prov, env.ledger, 5*time.Second, 1, discard)
	require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Gone"}))

	_, ch := r.Submit(ctx, "Gone")
	<-prov.started
	require.NoError(t, env.ledger.DeleteEntity(ctx, "Gone"))
	close(prov.release)

	res := <-ch
	assert.ErrorIs(t, res.Err, storage.ErrNotFound)
	_, err := env.ledger.GetEntity(ctx, "Gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshAllUsesEveryEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.svc.RefreshAll(ctx)
	assert.ErrorIs(t, err, ErrRefreshDisabled)

	r := lookup.NewRefresher(stubProvider{profile: core.Profile{Level: core.Ptr(260)}}, env.ledger, time.Second, 2, discard)
	env.svc = NewLedgerService(env.ledger, env.engine, WithRefresher(r), WithLogger(discard))
	require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Alpha"}))
	require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Beta"}))

	results, err := env.svc.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alpha", results[0].Name)
	assert.Equal(t, "Beta", results[1].Name)
	for _, res := range results {
		assert.True(t, res.OK())
	}
}

func TestSnapshotOfCurrentWeekRollsOver(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, lastWeek)
	require.NoError(t, err)
	_, err = env.ledger.AddEntityToWeek(ctx, lastWeek, "Alpha")
	require.NoError(t, err)
	_, err = env.ledger.ToggleCompletion(ctx, lastWeek, "Alpha", "Lucid")
	require.NoError(t, err)

	past, err := env.svc.Snapshot(ctx, string(lastWeek))
	require.NoError(t, err)
	assert.True(t, past.Entities[0].Tasks[0].Checked)

	snap, err := env.svc.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, thisWeek, snap.Week)
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, []core.TaskCheck{{Task: "Lucid", Price: 100}}, snap.Entities[0].Tasks)
}

func TestWritesIntoNewWeekRollOverFirst(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		_, err := env.ledger.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, lastWeek)
		require.NoError(t, err)
		_, err = env.ledger.AddEntityToWeek(ctx, lastWeek, "Alpha")
		require.NoError(t, err)
		require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Gamma"}))
		return env
	}
	alphaCarried := func(t *testing.T, env *testEnv) {
		snap, err := env.ledger.WeekSnapshot(ctx, thisWeek)
		require.NoError(t, err)
		alpha, ok := snap.Entity("Alpha")
		require.True(t, ok)
		assert.Equal(t, []core.TaskCheck{{Task: "Lucid", Price: 100}}, alpha.Tasks)
	}

	t.Run("create entity", func(t *testing.T) {
		env := seed(t)
		_, err := env.svc.CreateEntity(ctx, core.Entity{Name: "Beta"})
		require.NoError(t, err)
		alphaCarried(t, env)
	})

	t.Run("assign", func(t *testing.T) {
		env := seed(t)
		_, err := env.svc.Assign(ctx, "", "Gamma", "Lucid")
		require.NoError(t, err)
		alphaCarried(t, env)
	})

	t.Run("join week", func(t *testing.T) {
		env := seed(t)
		_, err := env.svc.AddEntityToWeek(ctx, "", "Gamma")
		require.NoError(t, err)
		alphaCarried(t, env)
	})

	t.Run("toggle", func(t *testing.T) {
		env := seed(t)
		checked, err := env.svc.Toggle(ctx, "", "Alpha", "Lucid")
		require.NoError(t, err)
		assert.True(t, checked)
	})

	t.Run("import", func(t *testing.T) {
		env := seed(t)
		_, err := env.svc.Import(ctx, strings.NewReader(`{"weeks": {"2025-36": {"Gamma": [{"text": "Lucid", "value": 100}]}}}`))
		require.NoError(t, err)
		alphaCarried(t, env)
	})

	t.Run("past weeks are left alone", func(t *testing.T) {
		env := seed(t)
		_, err := env.svc.Assign(ctx, string(lastWeek), "Gamma", "Lucid")
		require.NoError(t, err)
		keys, err := env.ledger.WeekKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []core.WeekKey{lastWeek}, keys)
	})
}

func TestWeeklyOperationsResolveWeeks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, "")
	require.NoError(t, err)
	_, err = env.svc.AddTask(ctx, core.Task{Name: "Will", Price: 300}, "")
	require.NoError(t, err)
	require.NoError(t, env.ledger.CreateEntity(ctx, core.Entity{Name: "Alpha"}))

	_, err = env.svc.AddEntityToWeek(ctx, "", "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	added, err := env.svc.Assign(ctx, "", "Alpha", "Will")
	require.NoError(t, err)
	assert.True(t, added)

	checked, err := env.svc.Toggle(ctx, "2025-36", "Alpha", "Will")
	require.NoError(t, err)
	assert.True(t, checked)

	require.NoError(t, env.svc.SetCompletion(ctx, "", "Alpha", "Will", false))
	require.NoError(t, env.svc.Unassign(ctx, "", "Alpha", "Will"))

	n, err := env.svc.AddEntityToWeek(ctx, "", "Alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	updated, err := env.svc.UpdatePrice(ctx, "Lucid", 150, "", "patch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	_, err = env.svc.Toggle(ctx, "whenever", "Alpha", "Lucid")
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestExportReport(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t)
	_, err := env.svc.ExportReport(ctx, "")
	assert.ErrorIs(t, err, ErrExportDisabled)

	store := memory.New()
	env = newTestEnv(t, WithReportWriter(store))
	_, err = env.svc.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, "")
	require.NoError(t, err)
	_, err = env.svc.CreateEntity(ctx, core.Entity{Name: "Alpha"})
	require.NoError(t, err)
	_, err = env.svc.Toggle(ctx, "", "Alpha", "Lucid")
	require.NoError(t, err)

	rep, err := env.svc.ExportReport(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rep.Total)

	got, ok := store.Latest(thisWeek)
	require.True(t, ok)
	assert.Equal(t, rep, got)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.svc.AddTask(ctx, core.Task{Name: "Lucid", Price: 100}, "")
	require.NoError(t, err)

	st, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, thisWeek, st.Week)
	assert.Equal(t, int64(1), st.Counts.Tasks)
	assert.Nil(t, st.Projection)

	_, err = env.engine.Resync(ctx)
	require.NoError(t, err)
	st, err = env.svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Projection)
	assert.Equal(t, st.Revision, st.Projection.Revision)
}
