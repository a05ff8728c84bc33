package admission

import (
	"testing"
	"time"
)

func TestDefaultPolicyConfig_Valid(t *testing.T) {
	if _, err := NewPolicyTable(DefaultPolicyConfig()); err != nil {
		t.Fatalf("the built-in policy set must validate: %v", err)
	}
}

func TestNewPolicyTable_Validation(t *testing.T) {
	t.Run("zero limit rejected", func(t *testing.T) {
		cfg := DefaultPolicyConfig()
		cfg.Chat.Limit = 0
		if _, err := NewPolicyTable(cfg); err == nil {
			t.Error("expected a validation error for a zero limit")
		}
	})

	t.Run("negative duration rejected", func(t *testing.T) {
		cfg := DefaultPolicyConfig()
		cfg.Auth.Duration = -time.Second
		if _, err := NewPolicyTable(cfg); err == nil {
			t.Error("expected a validation error for a negative duration")
		}
	})

	t.Run("missing default department rejected", func(t *testing.T) {
		cfg := DefaultPolicyConfig()
		delete(cfg.Departments, DefaultDepartment)
		if _, err := NewPolicyTable(cfg); err == nil {
			t.Error("expected a validation error without the default row")
		}
	})

	t.Run("missing free tier rejected", func(t *testing.T) {
		cfg := DefaultPolicyConfig()
		delete(cfg.Tiers, TierFree)
		if _, err := NewPolicyTable(cfg); err == nil {
			t.Error("expected a validation error without the free tier")
		}
	})
}

func TestPolicyTable_DepartmentFallbackCompleteness(t *testing.T) {
	table := MustPolicyTable(DefaultPolicyConfig())

	// Arbitrary unknown department and operation must still resolve.
	w := table.Department("definitely-not-a-department", Operation("definitely-not-an-op"))
	if err := w.Validate(); err != nil {
		t.Fatalf("fallback resolution must return a usable window: %v", err)
	}

	def := table.Department(DefaultDepartment, OpChat)
	if w != def {
		t.Errorf("unknown lookups must land on the default/chat cell: got %+v, want %+v", w, def)
	}

	// Known department, unknown operation falls to that row's chat column.
	w = table.Department("technology", Operation("mystery"))
	if w != table.Department("technology", OpChat) {
		t.Errorf("unknown operation must fall back to the department's chat window")
	}
}

func TestPolicyTable_TierFallback(t *testing.T) {
	table := MustPolicyTable(DefaultPolicyConfig())

	if table.Tier(TierPro) == table.Tier(TierFree) {
		t.Error("pro and free tiers should differ in the default config")
	}
	if table.Tier(Tier("gold")) != table.Tier(TierFree) {
		t.Error("unknown tiers must fall back to free")
	}
}

func TestUploadPolicy_SkipsAnonymous(t *testing.T) {
	p := UploadPolicy(MustPolicyTable(DefaultPolicyConfig()))

	if !p.Skip(Request{IP: "203.0.113.7"}) {
		t.Error("anonymous uploads must bypass the counter; auth is the real gate")
	}
	if p.Skip(Request{UserID: "42"}) {
		t.Error("authenticated uploads must be counted")
	}
	if p.Skip(Request{TenantID: "acme"}) {
		t.Error("tenant-authenticated uploads must be counted")
	}
}

func TestWebhookPolicy_LoopbackBypass(t *testing.T) {
	table := MustPolicyTable(DefaultPolicyConfig())
	loopback := Request{IP: "127.0.0.1:9000"}
	external := Request{IP: "203.0.113.7"}

	dev := WebhookPolicy(table, false)
	if !dev.Skip(loopback) {
		t.Error("loopback callers must bypass the webhook limit outside production")
	}
	if dev.Skip(external) {
		t.Error("external callers are always limited")
	}

	prod := WebhookPolicy(table, true)
	if prod.Skip(loopback) {
		t.Error("production must not grant the loopback bypass")
	}
}

func TestTierPolicy_WindowPerUser(t *testing.T) {
	table := MustPolicyTable(DefaultPolicyConfig())
	resolver := func(userID string) Tier {
		if userID == "vip" {
			return TierEnterprise
		}
		return TierFree
	}
	p := TierPolicy(table, resolver)

	if p.Skip(Request{}) != true {
		t.Error("anonymous requests must skip the tier policy")
	}

	vip := p.window(Request{UserID: "vip"})
	if vip != table.Tier(TierEnterprise) {
		t.Errorf("vip window = %+v, want enterprise", vip)
	}
	free := p.window(Request{UserID: "someone"})
	if free != table.Tier(TierFree) {
		t.Errorf("default window = %+v, want free", free)
	}
}
