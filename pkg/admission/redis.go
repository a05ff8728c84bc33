package admission

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

// RedisStore is a distributed CounterStore backed by Redis. A Lua script
// performs the increment-and-expire cycle atomically, which makes it safe to
// use across many application instances while enforcing a single global
// budget per bucket key.
type RedisStore struct {
	client    *redis.Client
	scriptSHA string
	prefix    string
	timeout   time.Duration
}

// NewRedisStore connects to Redis, loads the counter script, and returns a
// ready store. It fails fast when Redis is unreachable so the caller can
// decide between distributed and local-only mode at startup.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:  client,
		prefix:  "rl:",
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, fixedWindowScript).Result()
	if err != nil {
		return nil, fmt.Errorf("redis script load: %w", err)
	}
	s.scriptSHA = sha

	return s, nil
}

// Increment implements CounterStore. The call runs on the store's own
// timeout, detached from caller cancellation: a slow Redis cannot stall a
// request indefinitely, and an aborted request still completes its in-flight
// increment (quota is consumed, not rolled back) so a retry cannot race a
// rollback into a double charge.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	cmd := s.client.EvalSha(ctx, s.scriptSHA, []string{s.prefix + key}, window.Milliseconds())
	result, err := cmd.Result()
	if err != nil {
		// Script cache can be flushed by a Redis restart; reload once inline.
		if isNoScript(err) {
			result, err = s.client.Eval(ctx, fixedWindowScript, []string{s.prefix + key}, window.Milliseconds()).Result()
		}
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return parseCounterReply(result)
}

// parseCounterReply decodes the {count, ttl_ms} script reply. Anything that
// is not exactly two integers is treated like any other backend failure: a
// malformed reply must never decay into a count of zero, which would admit
// unconditionally.
func parseCounterReply(result any) (int64, time.Duration, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// Probe implements CounterStore with a PING.
func (s *RedisStore) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func isNoScript(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}
