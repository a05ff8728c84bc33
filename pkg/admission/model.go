package admission

import (
	"fmt"
	"time"
)

// Scope identifies the limiter class a policy belongs to. It is embedded in
// rejection codes ("CHAT_RATE_LIMIT_EXCEEDED") and metric labels.
type Scope string

const (
	ScopeGlobal  Scope = "GLOBAL"
	ScopeChat    Scope = "CHAT"
	ScopeAuth    Scope = "AUTH"
	ScopeUpload  Scope = "UPLOAD"
	ScopeWebhook Scope = "WEBHOOK"
	ScopeSmart   Scope = "SMART"
	ScopeTier    Scope = "TIER"
)

// Operation classifies what a request is trying to do. Unknown paths
// classify as OpChat.
type Operation string

const (
	OpChat   Operation = "chat"
	OpUpload Operation = "upload"
	OpInvoke Operation = "invoke"
)

// Tier is a named quota class assigned to an identity.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Window is one quota: at most Limit admissions per Duration.
type Window struct {
	Duration time.Duration
	Limit    int64
}

// Validate reports whether the window is usable as a policy.
func (w Window) Validate() error {
	if w.Duration <= 0 {
		return fmt.Errorf("window duration must be positive, got %v", w.Duration)
	}
	if w.Limit <= 0 {
		return fmt.Errorf("window limit must be positive, got %d", w.Limit)
	}
	return nil
}

// Request carries the attributes admission control keys and skips on. It is
// transport-neutral; the HTTP middleware builds one per inbound request.
type Request struct {
	// IP is the raw client address, with or without a port.
	IP string
	// UserID is the authenticated user id, empty when anonymous.
	UserID string
	// TenantID is the tenant claim, empty when absent.
	TenantID string
	// Department is the raw department header value, empty when absent.
	Department string
	// Path is the request path, used for department/operation inference.
	Path string
}

// Authenticated reports whether the request carries any identity.
func (r Request) Authenticated() bool {
	return r.UserID != "" || r.TenantID != ""
}

// KeyFunc derives the bucket key a request is charged against.
type KeyFunc func(Request) string

// SkipFunc reports whether a policy should be bypassed entirely for a
// request. When it returns true no counter is touched.
type SkipFunc func(Request) bool

// WindowFunc resolves a per-request window for policies whose quota depends
// on request attributes (department, operation, tier).
type WindowFunc func(Request) Window

// Policy binds a scope to its window and key derivation. Window holds the
// static quota; WindowFor, when set, overrides it per request.
type Policy struct {
	Scope     Scope
	Window    Window
	WindowFor WindowFunc
	Key       KeyFunc
	Skip      SkipFunc
}

func (p Policy) window(req Request) Window {
	if p.WindowFor != nil {
		return p.WindowFor(req)
	}
	return p.Window
}

// Decision is the outcome of evaluating one policy (or a whole pipeline)
// against a request. It is transient and never stored.
type Decision struct {
	Admitted   bool
	Scope      Scope
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	ResetAt    time.Time
}
