package admission

import (
	"net"
	"net/netip"
	"strings"
)

// IPv6PrefixBits is the prefix length IPv6 client addresses are collapsed to
// before keying. Providers hand out whole /64 blocks, so rotating addresses
// inside one must land on the same counter.
const IPv6PrefixBits = 64

// DefaultDepartment is charged when neither a header nor the path identifies
// a department.
const DefaultDepartment = "default"

// departmentRoutes maps route prefixes to department codes for requests that
// do not carry an explicit department header.
var departmentRoutes = map[string]string{
	"/api/exec":      "executive",
	"/api/eng":       "technology",
	"/api/marketing": "marketing",
}

// NormalizeIP canonicalizes a client address for keying. IPv4 addresses pass
// through unchanged; IPv6 addresses are masked to IPv6PrefixBits and rendered
// as the masked address, so that rotation within one allocation cannot evade
// a limit. A trailing port and an IPv6 zone are stripped. Unparsable input is
// returned trimmed, so a malformed address still gets a stable (if coarse)
// bucket instead of a panic.
func NormalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	addr = addr.WithZone("").Unmap()
	if addr.Is4() {
		return addr.String()
	}

	prefix, err := addr.Prefix(IPv6PrefixBits)
	if err != nil {
		return addr.String()
	}
	return prefix.Addr().String()
}

// SubjectKey identifies who a request is charged to, in priority order:
// authenticated user, then tenant, then normalized client IP.
func SubjectKey(r Request) string {
	if r.UserID != "" {
		return "user:" + r.UserID
	}
	if r.TenantID != "" {
		return "tenant:" + r.TenantID
	}
	return "ip:" + NormalizeIP(r.IP)
}

// IPKey ignores identity and keys on the normalized client IP. Used by the
// webhook policy, where callers are unauthenticated services.
func IPKey(r Request) string {
	return "ip:" + NormalizeIP(r.IP)
}

// ScopedKey builds the standard bucket key for a scope:
// "<scope>:<subject>", e.g. "chat:user:42".
func ScopedKey(scope Scope) KeyFunc {
	lower := strings.ToLower(string(scope))
	return func(r Request) string {
		return lower + ":" + SubjectKey(r)
	}
}

// ResolveDepartment returns the department a request belongs to. An explicit
// header wins; otherwise the path is matched against known route prefixes;
// otherwise DefaultDepartment.
func ResolveDepartment(r Request) string {
	if dept := strings.ToLower(strings.TrimSpace(r.Department)); dept != "" {
		return dept
	}
	for prefix, dept := range departmentRoutes {
		if strings.HasPrefix(r.Path, prefix) {
			return dept
		}
	}
	return DefaultDepartment
}

// ResolveOperation classifies a request path into an operation type.
// Unknown paths count as chat.
func ResolveOperation(path string) Operation {
	switch {
	case strings.Contains(path, "/upload"):
		return OpUpload
	case strings.Contains(path, "/invoke"), strings.Contains(path, "/agent"):
		return OpInvoke
	default:
		return OpChat
	}
}

// SmartKey buckets by department, operation, and subject together, so one
// department's heavy uploads cannot starve another's chats.
func SmartKey(r Request) string {
	return "smart:" + ResolveDepartment(r) + ":" + string(ResolveOperation(r.Path)) + ":" + SubjectKey(r)
}
