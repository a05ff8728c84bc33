// Package admission provides multi-tier admission control (rate limiting)
// with a distributed counter store and a transparent per-process fallback.
//
// The primary entry point is the Pipeline:
//
//	dec := pipeline.Evaluate(ctx, req)
//
// The returned Decision contains whether the request is admitted, the
// remaining quota, and timing hints for callers that want to set rate-limit
// headers (for example, Retry-After).
//
// # Overview
//
// This package implements fixed-window counting:
//
//   - Each bucket key has a counter with a TTL equal to the policy window.
//   - Every admission attempt increments the counter, admitted or not.
//   - The request is admitted while the post-increment count is within the
//     policy limit; the counter resets when its TTL expires.
//
// Fixed windows permit up to 2x the nominal limit across a window boundary.
// That is an accepted trade-off: the counter is O(1) state per key and a
// single atomic Redis operation, which matters more here than boundary
// precision.
//
// # Core Types
//
// Window defines a quota: at most Limit admissions per Duration.
//
// Policy binds a Scope to a Window, a KeyFunc that derives the bucket key
// from request attributes, and optionally a SkipFunc (bypass without
// charging) and a WindowFunc (per-request quotas for the department and
// tier policies).
//
// Request is the transport-neutral view of "who is asking": client IP,
// authenticated user, tenant, department, and path.
//
// # Backends
//
// The package provides two CounterStore implementations with the same
// Increment API:
//
//   - MemoryStore: an in-process store backed by a Go map with a periodic
//     sweep of expired entries. State is local to the process, so it does not
//     enforce a global limit across replicas.
//
//   - RedisStore: a distributed store backed by Redis. A Lua script performs
//     the increment-and-expire cycle atomically, which makes it safe across
//     many application instances while enforcing a single global budget per
//     key.
//
// FailoverStore combines both: it prefers Redis and fails open to the local
// store when Redis errors or times out, consulting a HealthMonitor so a dead
// backend is skipped rather than re-probed on every request. Store trouble
// is never surfaced to a request; it degrades counting accuracy, not
// availability.
//
// # Key Derivation
//
// Bucket keys prefer the authenticated user, then the tenant, then the
// client IP. IPv6 addresses are collapsed to their /64 prefix before keying
// so that address rotation inside one allocation cannot evade a limit.
// Department-aware keys resolve the department from an explicit header or
// from the route prefix, and classify the operation (chat, upload, invoke)
// from the path.
//
// # Policies
//
// PolicyTable holds the validated policy set: the global, chat, auth,
// upload, and webhook windows, the per-user tier rows, and the
// department-by-operation matrix. Every lookup is total - unknown
// departments, operations, and tiers fall back to the default, chat, and
// free rows respectively - so policy resolution cannot fail at request time.
// Misconfiguration is caught once, at construction.
//
// # Pipeline Semantics
//
// A Pipeline evaluates its policies in order and stops at the first
// rejection, so counters for later policies are not charged for a request
// that is already doomed. When everything admits, the decision with the
// least remaining quota is returned for header rendering.
//
// # Concurrency
//
// MemoryStore serializes on a single mutex; RedisStore delegates atomicity
// to the Lua script. No call blocks indefinitely: Redis operations carry a
// bounded timeout after which the local fallback serves the request. If the
// enclosing request is cancelled mid-decision, the in-flight increment still
// completes - quota is consumed rather than rolled back, avoiding
// double-increment races on retry.
//
// # Usage
//
// For runnable examples see example_test.go and cmd/example-server.
package admission
