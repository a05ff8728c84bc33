package admission

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthState is the monitor's view of the distributed backend.
type HealthState int32

const (
	StateUnknown HealthState = iota
	StateAvailable
	StateUnavailable
)

func (s HealthState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HealthMonitor tracks liveness of the distributed counter store. It is fed
// by per-call success/failure reports from the FailoverStore and, when
// constructed with a positive interval, by a periodic background probe that
// lets a degraded backend recover without request traffic.
//
// While the state is Unavailable, callers skip the distributed path entirely
// instead of re-probing inline on every request.
type HealthMonitor struct {
	store    CounterStore
	interval time.Duration
	log      *zap.Logger

	state  atomic.Int32
	cancel context.CancelFunc
}

// NewHealthMonitor constructs a monitor for store, starting in StateUnknown.
// A positive interval starts the background probe loop; call Close to stop
// it. A nil logger defaults to zap.NewNop().
func NewHealthMonitor(store CounterStore, interval time.Duration, log *zap.Logger) *HealthMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &HealthMonitor{
		store:    store,
		interval: interval,
		log:      log,
		cancel:   cancel,
	}
	m.state.Store(int32(StateUnknown))

	if interval > 0 {
		go m.probeLoop(ctx)
	}

	return m
}

// Healthy reports whether the distributed path should be attempted. Unknown
// counts as healthy: the first call after startup (or after a restart of the
// monitor) tries the backend and reports the result.
func (m *HealthMonitor) Healthy() bool {
	return HealthState(m.state.Load()) != StateUnavailable
}

// State returns the current state.
func (m *HealthMonitor) State() HealthState {
	return HealthState(m.state.Load())
}

// ReportSuccess records a successful distributed call.
func (m *HealthMonitor) ReportSuccess() {
	m.transition(StateAvailable)
}

// ReportFailure records a failed distributed call.
func (m *HealthMonitor) ReportFailure(err error) {
	if m.transition(StateUnavailable) {
		m.log.Warn("distributed counter store unavailable, serving from local store",
			zap.Error(err))
	}
}

// CheckNow probes the backend once and updates the state.
func (m *HealthMonitor) CheckNow(ctx context.Context) error {
	err := m.store.Probe(ctx)
	if err != nil {
		m.ReportFailure(err)
		return err
	}
	m.ReportSuccess()
	return nil
}

func (m *HealthMonitor) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.CheckNow(ctx)
		}
	}
}

// transition swaps the state and reports whether it changed. Recovery is
// logged here; degradation is logged by ReportFailure with the cause.
func (m *HealthMonitor) transition(next HealthState) bool {
	prev := HealthState(m.state.Swap(int32(next)))
	if prev == next {
		return false
	}
	if next == StateAvailable && prev == StateUnavailable {
		m.log.Warn("distributed counter store recovered",
			zap.String("previous", prev.String()))
	}
	return true
}

// Close stops the probe loop.
func (m *HealthMonitor) Close() {
	m.cancel()
}
