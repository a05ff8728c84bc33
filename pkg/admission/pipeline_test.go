package admission

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPipeline_AllAdmitReturnsTightest(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	p := NewPipeline(store, []Policy{
		userKeyPolicy(ScopeGlobal, Window{Duration: 15 * time.Minute, Limit: 1000}),
		userKeyPolicy(ScopeChat, Window{Duration: time.Minute, Limit: 5}),
	}, nil, nil)

	dec := p.Evaluate(context.Background(), Request{UserID: "42"})
	if !dec.Admitted {
		t.Fatal("both policies have room, must admit")
	}
	if dec.Scope != ScopeChat {
		t.Errorf("the tighter policy should drive the headers, got %v", dec.Scope)
	}
	if dec.Remaining != 4 {
		t.Errorf("remaining = %d, want 4", dec.Remaining)
	}
}

func TestPipeline_ShortCircuitChargeAvoidance(t *testing.T) {
	store := newRecordingStore()

	first := userKeyPolicy(ScopeChat, Window{Duration: time.Minute, Limit: 1})
	second := userKeyPolicy(ScopeGlobal, Window{Duration: time.Minute, Limit: 100})
	p := NewPipeline(store, []Policy{first, second}, nil, nil)
	req := Request{UserID: "42"}
	ctx := context.Background()

	// Exhaust the first policy.
	p.Evaluate(ctx, req)
	secondCalls := store.callsFor("global:user:42")

	dec := p.Evaluate(ctx, req)
	if dec.Admitted {
		t.Fatal("second evaluation should reject on the first policy")
	}
	if dec.Scope != ScopeChat {
		t.Errorf("rejection scope = %v, want CHAT", dec.Scope)
	}
	if got := store.callsFor("global:user:42"); got != secondCalls {
		t.Errorf("a doomed request must not charge later policies: calls went %d -> %d", secondCalls, got)
	}
}

func TestPipeline_OrderRespected(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	// Both policies are exhausted; the first in order must name the
	// rejection.
	tight := Window{Duration: time.Minute, Limit: 1}
	p := NewPipeline(store, []Policy{
		userKeyPolicy(ScopeAuth, tight),
		userKeyPolicy(ScopeGlobal, tight),
	}, nil, nil)
	req := Request{UserID: "42"}
	ctx := context.Background()

	p.Evaluate(ctx, req)
	dec := p.Evaluate(ctx, req)
	if dec.Admitted || dec.Scope != ScopeAuth {
		t.Errorf("first configured policy must reject first, got admitted=%v scope=%v", dec.Admitted, dec.Scope)
	}
}

func TestPipeline_Empty(t *testing.T) {
	p := NewPipeline(NewMemoryStore(0), nil, nil, nil)
	if dec := p.Evaluate(context.Background(), Request{}); !dec.Admitted {
		t.Error("an empty pipeline admits unconditionally")
	}
}

func TestPipeline_SkippedPoliciesDoNotDominateHeaders(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	upload := Policy{
		Scope:  ScopeUpload,
		Window: Window{Duration: time.Hour, Limit: 2},
		Key:    ScopedKey(ScopeUpload),
		Skip:   func(r Request) bool { return !r.Authenticated() },
	}
	global := userKeyPolicy(ScopeGlobal, Window{Duration: time.Minute, Limit: 100})
	p := NewPipeline(store, []Policy{upload, global}, nil, nil)

	dec := p.Evaluate(context.Background(), Request{IP: "203.0.113.7"})
	if !dec.Admitted {
		t.Fatal("must admit")
	}
	if !strings.EqualFold(string(dec.Scope), string(ScopeGlobal)) {
		t.Errorf("headers should reflect the charged policy, got %v", dec.Scope)
	}
}
