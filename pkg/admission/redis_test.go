package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStore_Increment(t *testing.T) {
	client := redisClient(t)
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}

	key := fmt.Sprintf("it_%d", time.Now().UnixNano())
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Errorf("first increment: count = %d, want 1", count)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("first increment: ttl = %v, want (0, 1m]", ttl)
	}

	count, ttl2, err := store.Increment(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 2 {
		t.Errorf("second increment: count = %d, want 2", count)
	}
	if ttl2 > ttl {
		t.Errorf("second increment must not extend the ttl: %v > %v", ttl2, ttl)
	}
}

func TestRedisStore_WithPrefix(t *testing.T) {
	client := redisClient(t)
	prefix := "custom_app:"
	store, err := NewRedisStore(client, WithPrefix(prefix))
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}

	key := fmt.Sprintf("prefix_test_%d", time.Now().UnixNano())
	ctx := context.Background()

	if _, _, err := store.Increment(ctx, key, time.Minute); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	exists, err := client.Exists(ctx, prefix+key).Result()
	if err != nil {
		t.Fatalf("Redis Exists failed: %v", err)
	}
	if exists == 0 {
		t.Errorf("expected key %s to exist", prefix+key)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	client := redisClient(t)
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}

	key := fmt.Sprintf("exp_%d", time.Now().UnixNano())
	ctx := context.Background()

	store.Increment(ctx, key, 100*time.Millisecond)
	store.Increment(ctx, key, 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	count, _, err := store.Increment(ctx, key, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expired key must restart at 1, got %d", count)
	}
}

func TestParseCounterReply(t *testing.T) {
	t.Run("well-formed", func(t *testing.T) {
		count, ttl, err := parseCounterReply([]interface{}{int64(7), int64(1500)})
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if count != 7 || ttl != 1500*time.Millisecond {
			t.Errorf("got count=%d ttl=%v", count, ttl)
		}
	})

	malformed := []struct {
		name  string
		reply any
	}{
		{"not a slice", "OK"},
		{"wrong arity", []interface{}{int64(1)}},
		{"string count", []interface{}{"7", int64(1500)}},
		{"string ttl", []interface{}{int64(7), "1500"}},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			// A malformed reply must fail the call, never decay into
			// count=0 and admit unconditionally.
			if _, _, err := parseCounterReply(tt.reply); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRedisStore_Probe(t *testing.T) {
	client := redisClient(t)
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}

	if err := store.Probe(context.Background()); err != nil {
		t.Errorf("Probe against a live Redis must succeed: %v", err)
	}
}
