package admission

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable indicates the distributed backend could not serve a
// call. Callers inside this package recover from it by falling back to the
// local store; it is never surfaced to a request.
var ErrStoreUnavailable = errors.New("admission: counter store unavailable")

// CounterStore is a shared, atomically incrementing counter keyed by string
// with expiry semantics.
//
// Increment bumps the counter for key, creating it with count=1 and a TTL of
// window if it is absent or expired, and returns the post-increment count
// together with the remaining TTL. The increment-and-read must be a single
// atomic unit: safe under concurrent calls from multiple goroutines and,
// for distributed implementations, multiple processes.
//
// Probe is a lightweight liveness check (PING-equivalent) used by the
// health monitor.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Probe(ctx context.Context) error
}
