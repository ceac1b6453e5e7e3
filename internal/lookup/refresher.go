package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"bossweek/internal/core"
)

// Result is the outcome of one refresh job, delivered once on the job's
// channel.
type Result struct {
	JobID    string       `json:"job_id"`
	Name     string       `json:"name"`
	Profile  core.Profile `json:"profile"`
	Err      error        `json:"-"`
	Reason   string       `json:"reason,omitempty"`
	Finished time.Time    `json:"finished"`
}

func (r Result) OK() bool { return r.Err == nil }

// Refresher runs profile lookups off the caller's path and writes
// successful results into the ledger. A failed lookup leaves stored
// attributes untouched.
type Refresher struct {
	provider Provider
	store    Updater
	timeout  time.Duration
	limit    int
	log      *slog.Logger
	wg       sync.WaitGroup
}

func NewRefresher(p Provider, store Updater, timeout time.Duration, concurrency int, logger *slog.Logger) *Refresher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 3 * DefaultTimeout
	}
	return &Refresher{
		provider: p,
		store:    store,
		timeout:  timeout,
		limit:    concurrency,
		log:      logger.With("component", "refresher"),
	}
}

// Submit starts a refresh job for name and returns its id and a channel
// that receives exactly one Result. Cancelling ctx after Submit returns
// does not stop the job.
func (r *Refresher) Submit(ctx context.Context, name string) (string, <-chan Result) {
	id := ulid.Make().String()
	out := make(chan Result, 1)
	detached := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)
		out <- r.Run(detached, id, name)
	}()
	return id, out
}

// Run executes one job synchronously.
func (r *Refresher) Run(ctx context.Context, jobID, name string) Result {
	res := Result{JobID: jobID, Name: name}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	p, err := r.provider.Lookup(lookupCtx, name)
	cancel()
	if err == nil {
		err = r.store.UpdateProfile(ctx, name, p)
		if err != nil {
			err = fmt.Errorf("store profile: %w", err)
		}
	}

	res.Finished = time.Now()
	if err != nil {
		res.Err = err
		res.Reason = err.Error()
		r.log.WarnContext(ctx, "Profile refresh failed", "job_id", jobID, "entity", name, "error", err)
		return res
	}
	res.Profile = p
	r.log.InfoContext(ctx, "Profile refreshed", "job_id", jobID, "entity", name)
	return res
}

// RefreshAll refreshes every name with bounded concurrency and returns one
// Result per name in input order.
func (r *Refresher) RefreshAll(ctx context.Context, names []string) []Result {
	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = r.Run(gctx, ulid.Make().String(), name)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Wait blocks until every submitted job finished.
func (r *Refresher) Wait() {
	r.wg.Wait()
}
