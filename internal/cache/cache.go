// Package cache holds small in-process caches used in front of slow
// external lookups.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache is a string keyed store of T.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that expire entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically evicts expired entries from registered caches.
type Janitor struct {
	caches map[string]Cleaner
}

func NewJanitor() *Janitor {
	return &Janitor{caches: make(map[string]Cleaner)}
}

// Register adds a named cache.
func (j *Janitor) Register(name string, c Cleaner) {
	j.caches[name] = c
}

// Sweep cleans every cache once and returns the evicted count per cache.
func (j *Janitor) Sweep() map[string]int {
	out := make(map[string]int, len(j.caches))
	for name, c := range j.caches {
		out[name] = c.CleanExpired()
	}
	return out
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, n := range j.Sweep() {
				if n > 0 {
					slog.DebugContext(ctx, "Cache entries expired", "component", "cache", "cache", name, "evicted", n)
				}
			}
		}
	}
}
