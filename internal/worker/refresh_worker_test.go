package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossweek/internal/amqp"
	"bossweek/internal/core"
	"bossweek/internal/lookup"
	"bossweek/internal/storage"
)

type memEntities struct {
	mu   sync.Mutex
	byID map[string]core.Entity
}

func newMemEntities(names ...string) *memEntities {
	m := &memEntities{byID: map[string]core.Entity{}}
	for _, n := range names {
		m.byID[n] = core.Entity{Name: n}
	}
	return m
}

func (m *memEntities) GetEntity(_ context.Context, name string) (core.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[name]
	if !ok {
		return core.Entity{}, fmt.Errorf("get entity %q: %w", name, storage.ErrNotFound)
	}
	return e, nil
}

func (m *memEntities) ListEntities(context.Context) ([]core.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Entity
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEntities) UpdateProfile(_ context.Context, name string, p core.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[name]
	if !ok {
		return fmt.Errorf("entity %q: %w", name, storage.ErrNotFound)
	}
	e.Profile = p.Merge(e.Profile)
	m.byID[name] = e
	return nil
}

func (m *memEntities) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, name)
}

// removingProvider deletes the entity while its lookup is in flight.
type removingProvider struct {
	ents *memEntities
}

func (p removingProvider) Lookup(_ context.Context, name string) (core.Profile, error) {
	p.ents.remove(name)
	return core.Profile{Level: core.Ptr(260)}, nil
}

type scriptedProvider map[string]error

func (s scriptedProvider) Lookup(_ context.Context, name string) (core.Profile, error) {
	if err := s[name]; err != nil {
		return core.Profile{}, err
	}
	return core.Profile{Level: core.Ptr(260), Job: core.Ptr("Bishop")}, nil
}

func newWorker(ents *memEntities, p lookup.Provider) *RefreshWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := lookup.NewRefresher(p, ents, time.Second, 2, logger)
	return NewRefreshWorker(ents, r, 0, logger)
}

func TestHandleRefreshAppliesProfile(t *testing.T) {
	ents := newMemEntities("A")
	w := newWorker(ents, scriptedProvider{})

	require.NoError(t, w.HandleRefresh(context.Background(), amqp.NewRefreshRequest("A")))
	e, _ := ents.GetEntity(context.Background(), "A")
	require.NotNil(t, e.Level)
	assert.Equal(t, 260, *e.Level)
}

func TestHandleRefreshAcksPermanentFailures(t *testing.T) {
	ents := newMemEntities("A")
	w := newWorker(ents, scriptedProvider{"A": lookup.ErrProfileNotFound})

	require.NoError(t, w.HandleRefresh(context.Background(), amqp.NewRefreshRequest("A")))
	require.NoError(t, w.HandleRefresh(context.Background(), amqp.NewRefreshRequest("ghost")), "unknown entity is acked")

	e, _ := ents.GetEntity(context.Background(), "A")
	assert.Nil(t, e.Level, "failed lookup leaves attributes untouched")
}

func TestHandleRefreshAcksEntityRemovedMidLookup(t *testing.T) {
	ents := newMemEntities("A")
	w := newWorker(ents, removingProvider{ents: ents})

	require.NoError(t, w.HandleRefresh(context.Background(), amqp.NewRefreshRequest("A")))
	_, err := ents.GetEntity(context.Background(), "A")
	assert.ErrorIs(t, err, storage.ErrNotFound, "refresh must not bring the entity back")
}

func TestHandleRefreshRequeuesTransientFailures(t *testing.T) {
	ents := newMemEntities("A")
	w := newWorker(ents, scriptedProvider{"A": fmt.Errorf("%w: status 503", lookup.ErrUnavailable)})

	err := w.HandleRefresh(context.Background(), amqp.NewRefreshRequest("A"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, lookup.ErrUnavailable))
}

func TestRefreshIncomplete(t *testing.T) {
	ents := newMemEntities("A", "B")
	ents.byID["C"] = core.Entity{Name: "C", Profile: core.Profile{Level: core.Ptr(1), Job: core.Ptr("Hero")}}
	w := newWorker(ents, scriptedProvider{"B": lookup.ErrProfileNotFound})

	results, err := w.RefreshIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	c, _ := ents.GetEntity(context.Background(), "C")
	assert.Equal(t, 1, *c.Level, "complete entities are not refreshed")
}
