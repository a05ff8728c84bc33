package admission

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// RequestFunc extracts the admission Request from an inbound HTTP request.
// The default reads the client address from RemoteAddr and the department
// from the X-Department header; deployments that resolve identity in
// middleware upstream should replace it to fill UserID/TenantID from their
// auth context.
type RequestFunc func(*http.Request) Request

// DefaultRequestFunc builds a Request from transport attributes only.
func DefaultRequestFunc(r *http.Request) Request {
	return Request{
		IP:         r.RemoteAddr,
		Department: r.Header.Get("X-Department"),
		Path:       r.URL.Path,
	}
}

type middlewareConfig struct {
	requestFunc RequestFunc
	reporter    *Reporter
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithRequestFunc replaces the Request extractor.
func WithRequestFunc(fn RequestFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.requestFunc = fn
	}
}

// WithReporter replaces the rejection reporter (default: silent).
func WithReporter(rep *Reporter) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.reporter = rep
	}
}

// Middleware evaluates the pipeline for every request. Admitted requests
// proceed with RateLimit-Limit, RateLimit-Remaining, and RateLimit-Reset
// headers describing the most constrained policy; rejected requests get a
// 429 with a Retry-After header and the standard JSON body. The legacy
// X-RateLimit-* header family is deliberately not emitted.
func Middleware(p *Pipeline, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		requestFunc: DefaultRequestFunc,
		reporter:    NewReporter(zap.NewNop()),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := cfg.requestFunc(r)
			dec := p.Evaluate(r.Context(), req)

			setRateLimitHeaders(w, dec)

			if dec.Admitted {
				next.ServeHTTP(w, r)
				return
			}

			cfg.reporter.Report(req, dec)

			retrySecs := int64(dec.RetryAfter / time.Second)
			if retrySecs < 1 {
				retrySecs = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retrySecs, 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(NewRejection(dec))
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, dec Decision) {
	if dec.Limit == 0 {
		return
	}
	w.Header().Set("RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
	w.Header().Set("RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
	if !dec.ResetAt.IsZero() {
		reset := int64(time.Until(dec.ResetAt) / time.Second)
		if reset < 0 {
			reset = 0
		}
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(reset, 10))
	}
}
