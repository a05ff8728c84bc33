package admission

import (
	"context"

	"go.uber.org/zap"
)

// Pipeline evaluates an ordered list of policies against each request,
// short-circuiting on the first rejection so that counters for later
// policies are never charged for a request that is already doomed.
//
// The pipeline itself is stateless across requests; only the underlying
// counter store carries state.
type Pipeline struct {
	deciders []*Decider
}

// NewPipeline builds deciders for the given policies, in evaluation order,
// all sharing one counter store.
func NewPipeline(store CounterStore, policies []Policy, log *zap.Logger, rec MetricsRecorder) *Pipeline {
	deciders := make([]*Decider, 0, len(policies))
	for _, p := range policies {
		deciders = append(deciders, NewDecider(store, p, log, rec))
	}
	return &Pipeline{deciders: deciders}
}

// Evaluate runs the policies in order. The returned decision is either the
// first rejection, or, when every policy admits, the admitting decision with
// the least remaining quota (the one callers should surface in rate-limit
// headers). An empty pipeline admits unconditionally.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) Decision {
	tightest := Decision{Admitted: true}
	haveTightest := false

	for _, d := range p.deciders {
		dec := d.Evaluate(ctx, req)
		if !dec.Admitted {
			return dec
		}
		if dec.ResetAt.IsZero() {
			// Skipped (or store-degraded) policies charged nothing; they
			// have no quota worth surfacing in headers.
			continue
		}
		if !haveTightest || dec.Remaining < tightest.Remaining {
			tightest = dec
			haveTightest = true
		}
	}

	return tightest
}
