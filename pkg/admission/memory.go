package admission

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often MemoryStore evicts expired entries.
const DefaultSweepInterval = 30 * time.Minute

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// expired reports whether a window ending at expiresAt is over: the window
// is half-open, so the entry resets the instant now reaches expiresAt.
func expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// MemoryStore is an in-process CounterStore backed by a mutex-guarded map.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. It serves as the
// fail-open fallback when the distributed store is unreachable, and as a
// fast, dependency-free stand-in for tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry

	cancel context.CancelFunc
}

// NewMemoryStore constructs a MemoryStore. A positive sweepInterval starts a
// background goroutine that periodically evicts expired entries to bound
// memory growth; pass 0 to disable it (tests). Call Close to stop the sweep.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		entries: make(map[string]*counterEntry),
		cancel:  cancel,
	}

	if sweepInterval > 0 {
		go s.sweep(ctx, sweepInterval)
	}

	return s
}

func (s *MemoryStore) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if expired(now, entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Increment implements CounterStore. An absent or expired entry restarts the
// window at count=1; otherwise the count is bumped and the expiry is left
// untouched.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || expired(now, entry.expiresAt) {
		entry = &counterEntry{count: 1, expiresAt: now.Add(window)}
		s.entries[key] = entry
		return 1, window, nil
	}

	entry.count++
	return entry.count, entry.expiresAt.Sub(now), nil
}

// Probe implements CounterStore. The local store is always reachable.
func (s *MemoryStore) Probe(ctx context.Context) error {
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() {
	s.cancel()
}
