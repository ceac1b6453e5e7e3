// Package lookup fetches entity profiles from an external game data API.
//
// The API is unreliable by nature. Every failure is reported to the caller
// and never changes stored attributes.
package lookup

import (
	"context"
	"errors"

	"bossweek/internal/core"
)

var (
	// ErrProfileNotFound means the API has no entity with that name.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrIncomplete means the API answered without the basic attributes.
	ErrIncomplete = errors.New("incomplete profile")
	// ErrUnavailable covers timeouts, throttling and server errors.
	ErrUnavailable = errors.New("lookup service unavailable")
)

// Provider resolves an entity name to its profile.
type Provider interface {
	Lookup(ctx context.Context, name string) (core.Profile, error)
}

// Updater is where successful lookups are written. UpdateProfile must not
// create entities that were removed while the lookup ran.
type Updater interface {
	UpdateProfile(ctx context.Context, name string, p core.Profile) error
}
