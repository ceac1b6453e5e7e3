package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bossweek/internal/amqp"
	"bossweek/internal/core"
	"bossweek/internal/lookup"
	"bossweek/internal/storage"
)

// Entities is the ledger view the worker needs.
type Entities interface {
	GetEntity(ctx context.Context, name string) (core.Entity, error)
	ListEntities(ctx context.Context) ([]core.Entity, error)
}

// RefreshWorker applies profile refresh requests taken off the queue.
type RefreshWorker struct {
	entities   Entities
	refresher  *lookup.Refresher
	retryPause time.Duration
	log        *slog.Logger
}

func NewRefreshWorker(entities Entities, refresher *lookup.Refresher, retryPause time.Duration, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		entities:   entities,
		refresher:  refresher,
		retryPause: retryPause,
		log:        logger.With("component", "worker"),
	}
}

// HandleRefresh runs one refresh request. A nil return acks the message.
// Requests for unknown entities and names the API does not know are acked
// after logging; transient lookup failures are returned so the message is
// requeued, after a pause so an outage does not spin the queue.
func (w *RefreshWorker) HandleRefresh(ctx context.Context, msg *amqp.RefreshRequest) error {
	log := w.log.With("job_id", msg.JobID.String(), "entity", msg.Name)

	if _, err := w.entities.GetEntity(ctx, msg.Name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.WarnContext(ctx, "Dropping refresh for unknown entity")
			return nil
		}
		return fmt.Errorf("get entity: %w", err)
	}

	res := w.refresher.Run(ctx, msg.JobID.String(), msg.Name)
	switch {
	case res.OK():
		log.InfoContext(ctx, "Refresh request applied", "queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))
		return nil
	case errors.Is(res.Err, lookup.ErrProfileNotFound), errors.Is(res.Err, lookup.ErrIncomplete):
		log.WarnContext(ctx, "Refresh request dropped", "reason", res.Reason)
		return nil
	case errors.Is(res.Err, storage.ErrNotFound):
		log.WarnContext(ctx, "Entity removed during refresh")
		return nil
	}

	if w.retryPause > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(w.retryPause):
		}
	}
	return fmt.Errorf("refresh %q: %w", msg.Name, res.Err)
}

// RefreshIncomplete refreshes every entity whose level or job is still
// unknown. Run at worker startup so entities created while the worker was
// down get their profiles.
func (w *RefreshWorker) RefreshIncomplete(ctx context.Context) ([]lookup.Result, error) {
	all, err := w.entities.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	var names []string
	for _, e := range all {
		if e.Level == nil || e.Job == nil {
			names = append(names, e.Name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	results := w.refresher.RefreshAll(ctx, names)
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	w.log.InfoContext(ctx, "Startup refresh completed", "entities", len(names), "failed", failed)
	return results, nil
}
