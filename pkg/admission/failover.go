package admission

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FailoverStore is a CounterStore that prefers a distributed backend and
// fails open to a process-local store when the backend errors or the health
// monitor marks it unavailable. A single failed call falls back for that call
// only; a degraded monitor skips the distributed path entirely until the
// probe loop sees it recover.
//
// A brief window during failover may under- or over-count by a small bounded
// amount; the fixed-window model is already approximate and this is accepted.
type FailoverStore struct {
	remote  CounterStore
	local   CounterStore
	monitor *HealthMonitor
	log     *zap.Logger
	rec     MetricsRecorder
}

// NewFailoverStore wires the distributed store, its local fallback, and the
// health monitor. remote may be nil, which pins the store to permanent local
// mode (no distributed backend configured).
func NewFailoverStore(remote, local CounterStore, monitor *HealthMonitor, opts ...FailoverOption) *FailoverStore {
	f := &FailoverStore{
		remote:  remote,
		local:   local,
		monitor: monitor,
		log:     zap.NewNop(),
		rec:     &NoOpMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Increment implements CounterStore. It never returns an error: the local
// store absorbs every distributed failure.
func (f *FailoverStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.remote == nil || (f.monitor != nil && !f.monitor.Healthy()) {
		return f.local.Increment(ctx, key, window)
	}

	start := time.Now()
	count, ttl, err := f.remote.Increment(ctx, key, window)
	f.rec.Observe("admission_store_latency_seconds", time.Since(start).Seconds(),
		map[string]string{"backend": "distributed"})
	if err != nil {
		f.rec.Add("admission_store_errors_total", 1, map[string]string{"backend": "distributed"})
		// A cancelled caller is not evidence of a sick backend; only
		// organic failures degrade the monitor.
		if f.monitor != nil && ctx.Err() == nil {
			f.monitor.ReportFailure(err)
		}
		f.log.Warn("counter increment failed, using local store for this call",
			zap.Error(err))
		return f.local.Increment(ctx, key, window)
	}

	if f.monitor != nil {
		f.monitor.ReportSuccess()
	}
	return count, ttl, nil
}

// Probe implements CounterStore against the distributed backend; in
// permanent local mode the always-reachable local store answers.
func (f *FailoverStore) Probe(ctx context.Context) error {
	if f.remote == nil {
		return f.local.Probe(ctx)
	}
	return f.remote.Probe(ctx)
}

// Distributed reports whether the distributed path is currently in use,
// for health endpoints.
func (f *FailoverStore) Distributed() bool {
	return f.remote != nil && (f.monitor == nil || f.monitor.Healthy())
}
