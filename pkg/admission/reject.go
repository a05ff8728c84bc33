package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rejection is the standardized 429 body returned to callers. It exposes
// only the limit metadata a client needs to back off; never key material,
// raw counts, or store topology.
type Rejection struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter string `json:"retryAfter"`
}

// NewRejection renders a rejected decision into the wire payload.
func NewRejection(dec Decision) Rejection {
	return Rejection{
		Success:    false,
		Error:      fmt.Sprintf("Too many %s requests, please try again later", strings.ToLower(string(dec.Scope))),
		Code:       string(dec.Scope) + "_RATE_LIMIT_EXCEEDED",
		RetryAfter: humanDuration(dec.RetryAfter),
	}
}

// humanDuration renders a duration as a coarse human hint ("45 seconds",
// "15 minutes"). Sub-second remainders round up so the hint never tells a
// client to retry too early.
func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "1 second"
	}
	switch {
	case d < time.Minute:
		secs := int64((d + time.Second - 1) / time.Second)
		return plural(secs, "second")
	case d < time.Hour:
		mins := int64((d + time.Minute - 1) / time.Minute)
		return plural(mins, "minute")
	default:
		hours := int64((d + time.Hour - 1) / time.Hour)
		return plural(hours, "hour")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Reporter emits a warning-level audit event for every rejection. Events
// carry the scope-level context (department, operation) but never the raw
// bucket key or the subject identifier inside it.
type Reporter struct {
	log *zap.Logger
}

// NewReporter wraps a logger; nil defaults to zap.NewNop().
func NewReporter(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{log: log}
}

// Report logs one rejection. Quota exhaustion is normal control flow, so
// warning is the ceiling for these events.
func (r *Reporter) Report(req Request, dec Decision) {
	r.log.Warn("request rejected by rate limit",
		zap.String("event_id", uuid.NewString()),
		zap.String("scope", string(dec.Scope)),
		zap.String("department", ResolveDepartment(req)),
		zap.String("operation", string(ResolveOperation(req.Path))),
		zap.Bool("authenticated", req.Authenticated()),
		zap.Int64("limit", dec.Limit),
		zap.Duration("retry_after", dec.RetryAfter),
	)
}
