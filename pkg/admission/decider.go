package admission

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Decider evaluates one policy against requests using a fixed-window
// counter.
//
// The counter is incremented on every attempt, admitted or not, and the
// decision compares the post-increment count against the limit. Fixed
// windows accept up to 2x the nominal limit across a window boundary in
// exchange for O(1) state per key and a trivially atomic distributed
// implementation.
type Decider struct {
	store  CounterStore
	policy Policy
	log    *zap.Logger
	rec    MetricsRecorder
}

// NewDecider binds a policy to a counter store. A nil logger defaults to
// zap.NewNop(); a nil recorder to the no-op recorder.
func NewDecider(store CounterStore, policy Policy, log *zap.Logger, rec MetricsRecorder) *Decider {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = &NoOpMetricsRecorder{}
	}
	return &Decider{store: store, policy: policy, log: log, rec: rec}
}

// Scope returns the bound policy's scope.
func (d *Decider) Scope() Scope {
	return d.policy.Scope
}

// Evaluate charges the request against the policy's bucket and decides.
// If the policy's skip predicate fires, the request is admitted without
// touching the counter. A store error never rejects: the request is admitted
// and the failure logged, since the FailoverStore has already exhausted the
// local fallback by the time an error reaches here.
func (d *Decider) Evaluate(ctx context.Context, req Request) Decision {
	w := d.policy.window(req)

	if d.policy.Skip != nil && d.policy.Skip(req) {
		return Decision{
			Admitted:  true,
			Scope:     d.policy.Scope,
			Limit:     w.Limit,
			Remaining: w.Limit,
		}
	}

	key := d.policy.Key(req)
	count, ttl, err := d.store.Increment(ctx, key, w.Duration)
	if err != nil {
		d.rec.Add("admission_decisions_total", 1, map[string]string{
			"scope": string(d.policy.Scope), "result": "error",
		})
		d.log.Warn("counter store failed, admitting request",
			zap.String("scope", string(d.policy.Scope)),
			zap.Error(err))
		return Decision{
			Admitted:  true,
			Scope:     d.policy.Scope,
			Limit:     w.Limit,
			Remaining: w.Limit,
		}
	}

	dec := Decision{
		Scope:   d.policy.Scope,
		Limit:   w.Limit,
		ResetAt: time.Now().Add(ttl),
	}
	if count <= w.Limit {
		dec.Admitted = true
		dec.Remaining = w.Limit - count
	} else {
		dec.Admitted = false
		dec.Remaining = 0
		dec.RetryAfter = ttl
	}

	result := "allowed"
	if !dec.Admitted {
		result = "denied"
	}
	d.rec.Add("admission_decisions_total", 1, map[string]string{
		"scope": string(d.policy.Scope), "result": result,
	})

	return dec
}
