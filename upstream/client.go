// Package upstream provides the opaque secrets-manager SDK client the
// broker's upstream-read and upstream-write stages speak to. Its Client
// interface deliberately exposes nothing beyond sync/get/create: the
// broker treats whatever sits behind it as a black box, the way every
// stage treats the stages around it.
package upstream

import (
	"context"
	"time"
)

// Secret is a single credential as reported by the upstream store.
type Secret struct {
	ID        string
	Key       string
	Value     string
	RateLimit *RateLimit
}

// RateLimit is the quota state the upstream reported alongside a response,
// or nil if the upstream didn't report one.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ErrKind classifies an upstream failure so a caller can map it to the
// broker's own HTTP status taxonomy without parsing error text or knowing
// which concrete Client produced it.
type ErrKind int

const (
	// ErrKindUnspecified is an upstream failure with no more specific
	// classification; callers map it to an internal-error status.
	ErrKindUnspecified ErrKind = iota
	// ErrKindUnauthorized means the client's credentials were rejected.
	ErrKindUnauthorized
	// ErrKindRateLimit means the upstream itself rate-limited this client.
	ErrKindRateLimit
	// ErrKindTransport means the request never reached the upstream, or
	// its response could not be understood as one (network, TLS, decode).
	ErrKindTransport
)

// Error wraps an upstream failure with its Kind. Concrete Clients should
// return one whenever they can distinguish the failure mode; Kind is
// ErrKindUnspecified when they can't.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Client is the minimal surface the broker needs from an upstream secrets
// manager: a full sync, a point lookup by id, and a create/overwrite by
// key. Concrete implementations (VaultClient today) may hold transport
// state, retries, and auth refresh behind this interface.
type Client interface {
	// Sync returns every secret currently visible to this client's
	// credentials. Used by the background sync loop to refresh the local
	// view and fan out updates.
	Sync(ctx context.Context) ([]Secret, error)

	// GetByID returns a single secret by the upstream's own identifier.
	GetByID(ctx context.Context, id string) (*Secret, error)

	// Create stores value under key, returning the upstream's record of it
	// (including the id it was assigned).
	Create(ctx context.Context, key, value string) (*Secret, error)
}
