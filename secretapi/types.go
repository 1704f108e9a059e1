// Package secretapi implements the gsecret broker API: its domain types,
// its bidirectional stage contract, the six built-in pipeline stages, and
// the APIPlugin that wires a configured chain of those stages to HTTP.
package secretapi

import "time"

// Secret is a single named credential as seen by a reader: the identifier
// the upstream store assigned to it, the key it was stored under, and its
// value. RateLimit is populated by stages that track quota against an
// upstream and is nil otherwise.
type Secret struct {
	KeyID     string
	Key       string
	Value     any
	RateLimit *RateLimit
}

// UpdatedSecret is the payload carried by a reverse-propagation
// (secret_updated) call. It extends Secret with the per-stage relation
// identifiers a stage needs to decide whether the update concerns an
// entry it is caching or tracking.
type UpdatedSecret struct {
	Secret
	APIIDRelation  *string
	APIKeyRelation *string
}

// WriteSecret is the payload a client submits to create or update a
// secret's value. It carries no KeyID: one is assigned by the upstream
// stage that actually stores it.
type WriteSecret struct {
	Key   string
	Value any
}

// RateLimit reports the quota state of a single upstream relation as of
// its last observed response.
type RateLimit struct {
	Limit       int
	Remaining   int
	Reset       time.Time
	APIRelation string
}

// Failure is the non-secret branch of the two-variant stage result: a
// tagged reason plus the HTTP status code it maps to.
type Failure struct {
	Reason string
	Code   int
}

func (f *Failure) Error() string {
	return f.Reason
}

// Error taxonomy codes, per the broker's external error contract.
const (
	CodeUnauthorized       = 401
	CodeNotFound           = 404
	CodeRateLimitExceeded  = 429
	CodeUpstreamFailure    = 500
	CodeNotSupportedByAPI  = 501
	CodeUpstreamUnreachable = 503
)

// NewFailure is a small constructor used pervasively by stages to build a
// Failure without repeating the struct literal's field names.
func NewFailure(code int, reason string) *Failure {
	return &Failure{Reason: reason, Code: code}
}

// Result is the closed two-variant outcome every forward stage operation
// returns: exactly one of Secret or Failure is non-nil.
type Result struct {
	Secret  *Secret
	Failure *Failure
}

// Ok wraps a Secret in a successful Result.
func Ok(s *Secret) Result {
	return Result{Secret: s}
}

// Err wraps a Failure in a failed Result.
func Err(f *Failure) Result {
	return Result{Failure: f}
}

// IsFailure reports whether r carries a Failure.
func (r Result) IsFailure() bool {
	return r.Failure != nil
}
