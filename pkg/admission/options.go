package admission

import (
	"time"

	"go.uber.org/zap"
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix prepended to every bucket key
// (default "rl:").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout bounds each Redis operation (default 5s). After the timeout the
// call is treated as a store failure and the caller falls back locally.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// FailoverOption configures a FailoverStore.
type FailoverOption func(*FailoverStore)

// WithLogger sets the logger used for fallback warnings
// (default zap.NewNop()).
func WithLogger(log *zap.Logger) FailoverOption {
	return func(f *FailoverStore) {
		f.log = log
	}
}

// WithRecorder injects a metrics backend (default no-op).
func WithRecorder(rec MetricsRecorder) FailoverOption {
	return func(f *FailoverStore) {
		f.rec = rec
	}
}
