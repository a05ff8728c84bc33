package admission

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// TierResolver looks up the quota tier for a user. The production lookup is
// not wired yet; NewPolicyTable callers typically pass DefaultTierResolver,
// which places everyone on the free tier.
type TierResolver func(userID string) Tier

// DefaultTierResolver assigns every user the free tier.
func DefaultTierResolver(userID string) Tier {
	return TierFree
}

// PolicyConfig is the mutable form a PolicyTable is built from. Zero-value
// fields are rejected by NewPolicyTable, so construction normally starts from
// DefaultPolicyConfig with selective overrides.
type PolicyConfig struct {
	Global  Window
	Chat    Window
	Auth    Window
	Upload  Window
	Webhook Window

	Tiers       map[Tier]Window
	Departments map[string]map[Operation]Window
}

// DefaultPolicyConfig returns the built-in policy set.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Global:  Window{Duration: 15 * time.Minute, Limit: 1000},
		Chat:    Window{Duration: time.Minute, Limit: 100},
		Auth:    Window{Duration: time.Minute, Limit: 10},
		Upload:  Window{Duration: time.Hour, Limit: 20},
		Webhook: Window{Duration: time.Minute, Limit: 100},
		Tiers: map[Tier]Window{
			TierFree:       {Duration: time.Minute, Limit: 50},
			TierPro:        {Duration: time.Minute, Limit: 200},
			TierEnterprise: {Duration: time.Minute, Limit: 1000},
		},
		Departments: map[string]map[Operation]Window{
			"executive": {
				OpChat:   {Duration: time.Minute, Limit: 500},
				OpUpload: {Duration: time.Hour, Limit: 50},
				OpInvoke: {Duration: time.Minute, Limit: 100},
			},
			"technology": {
				OpChat:   {Duration: time.Minute, Limit: 300},
				OpUpload: {Duration: time.Hour, Limit: 40},
				OpInvoke: {Duration: time.Minute, Limit: 120},
			},
			"marketing": {
				OpChat:   {Duration: time.Minute, Limit: 200},
				OpUpload: {Duration: time.Hour, Limit: 30},
				OpInvoke: {Duration: time.Minute, Limit: 60},
			},
			DefaultDepartment: {
				OpChat:   {Duration: time.Minute, Limit: 100},
				OpUpload: {Duration: time.Hour, Limit: 20},
				OpInvoke: {Duration: time.Minute, Limit: 50},
			},
		},
	}
}

// PolicyTable is the immutable, validated policy set. Lookups are total:
// unknown departments fall back to the default row, unknown operations to
// chat, unknown tiers to free, so a request can never fail to resolve a
// window at runtime.
type PolicyTable struct {
	cfg PolicyConfig
}

// NewPolicyTable validates cfg and freezes it. Validation failures are
// configuration errors and should be fatal at startup.
func NewPolicyTable(cfg PolicyConfig) (*PolicyTable, error) {
	named := map[string]Window{
		"global":  cfg.Global,
		"chat":    cfg.Chat,
		"auth":    cfg.Auth,
		"upload":  cfg.Upload,
		"webhook": cfg.Webhook,
	}
	for name, w := range named {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
	}

	if _, ok := cfg.Tiers[TierFree]; !ok {
		return nil, fmt.Errorf("tier table must contain the %q fallback row", TierFree)
	}
	for tier, w := range cfg.Tiers {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("tier %q: %w", tier, err)
		}
	}

	def, ok := cfg.Departments[DefaultDepartment]
	if !ok {
		return nil, fmt.Errorf("department table must contain the %q fallback row", DefaultDepartment)
	}
	if _, ok := def[OpChat]; !ok {
		return nil, fmt.Errorf("department %q must contain the %q fallback column", DefaultDepartment, OpChat)
	}
	for dept, ops := range cfg.Departments {
		for op, w := range ops {
			if err := w.Validate(); err != nil {
				return nil, fmt.Errorf("department %q operation %q: %w", dept, op, err)
			}
		}
	}

	return &PolicyTable{cfg: cfg}, nil
}

// MustPolicyTable is NewPolicyTable for static configuration known to be
// valid; it panics on error.
func MustPolicyTable(cfg PolicyConfig) *PolicyTable {
	t, err := NewPolicyTable(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *PolicyTable) Global() Window  { return t.cfg.Global }
func (t *PolicyTable) Chat() Window    { return t.cfg.Chat }
func (t *PolicyTable) Auth() Window    { return t.cfg.Auth }
func (t *PolicyTable) Upload() Window  { return t.cfg.Upload }
func (t *PolicyTable) Webhook() Window { return t.cfg.Webhook }

// Tier resolves a tier's window, falling back to free.
func (t *PolicyTable) Tier(tier Tier) Window {
	if w, ok := t.cfg.Tiers[tier]; ok {
		return w
	}
	return t.cfg.Tiers[TierFree]
}

// Department resolves the window for a department and operation. Unknown
// departments use the default row; unknown operations use that row's chat
// column. Resolution never fails.
func (t *PolicyTable) Department(dept string, op Operation) Window {
	row, ok := t.cfg.Departments[dept]
	if !ok {
		row = t.cfg.Departments[DefaultDepartment]
	}
	if w, ok := row[op]; ok {
		return w
	}
	if w, ok := row[OpChat]; ok {
		return w
	}
	return t.cfg.Departments[DefaultDepartment][OpChat]
}

// GlobalPolicy is the coarse per-subject backstop applied to every route.
func GlobalPolicy(t *PolicyTable) Policy {
	return Policy{Scope: ScopeGlobal, Window: t.Global(), Key: ScopedKey(ScopeGlobal)}
}

// ChatPolicy limits conversational traffic.
func ChatPolicy(t *PolicyTable) Policy {
	return Policy{Scope: ScopeChat, Window: t.Chat(), Key: ScopedKey(ScopeChat)}
}

// AuthPolicy is the brute-force guard on credential endpoints, deliberately
// the tightest policy in the system.
func AuthPolicy(t *PolicyTable) Policy {
	return Policy{Scope: ScopeAuth, Window: t.Auth(), Key: ScopedKey(ScopeAuth)}
}

// UploadPolicy limits library uploads per user (per IP when anonymous, which
// only happens when the auth middleware is bypassed, so anonymous requests
// skip the counter entirely and leave rejection to auth).
func UploadPolicy(t *PolicyTable) Policy {
	return Policy{
		Scope:  ScopeUpload,
		Window: t.Upload(),
		Key:    ScopedKey(ScopeUpload),
		Skip: func(r Request) bool {
			return !r.Authenticated()
		},
	}
}

// WebhookPolicy limits webhook deliveries per caller IP. Outside production
// loopback callers are exempt so local integration testing is not throttled.
func WebhookPolicy(t *PolicyTable, production bool) Policy {
	return Policy{
		Scope:  ScopeWebhook,
		Window: t.Webhook(),
		Key: func(r Request) string {
			return "webhook:" + IPKey(r)
		},
		Skip: func(r Request) bool {
			return !production && isLoopback(r.IP)
		},
	}
}

// TierPolicy applies the per-user tier quota. Anonymous requests skip it;
// they are already covered by the IP-keyed global policy.
func TierPolicy(t *PolicyTable, resolve TierResolver) Policy {
	if resolve == nil {
		resolve = DefaultTierResolver
	}
	return Policy{
		Scope: ScopeTier,
		WindowFor: func(r Request) Window {
			return t.Tier(resolve(r.UserID))
		},
		Key: func(r Request) string {
			return "tier:user:" + r.UserID
		},
		Skip: func(r Request) bool {
			return r.UserID == ""
		},
	}
}

// SmartPolicy applies the department×operation matrix.
func SmartPolicy(t *PolicyTable) Policy {
	return Policy{
		Scope: ScopeSmart,
		WindowFor: func(r Request) Window {
			return t.Department(ResolveDepartment(r), ResolveOperation(r.Path))
		},
		Key: SmartKey,
	}
}

func isLoopback(raw string) bool {
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	return addr.IsLoopback()
}
