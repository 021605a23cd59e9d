package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/ratelimit-demo-go/internal/ratelimit"
)

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// State is local to the process, so limits are not shared between replicas.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryOption configures a RateLimitMemoryStore.
type MemoryOption func(*RateLimitMemoryStore)

// WithClock replaces time.Now, mainly for tests that need to move past a window.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *RateLimitMemoryStore) { s.now = now }
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore(opts ...MemoryOption) *RateLimitMemoryStore {
	s := &RateLimitMemoryStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *RateLimitMemoryStore) Acquire(
	_ context.Context, key string, limit int64, window time.Duration,
) (ratelimit.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &windowCounter{count: 1, expiresAt: now.Add(window)}
		s.counters[key] = c

		return ratelimit.Counter{Count: 1, Acquired: true, TTL: window}, nil
	}

	ttl := c.expiresAt.Sub(now)

	if c.count < limit {
		c.count++

		return ratelimit.Counter{Count: c.count, Acquired: true, TTL: ttl}, nil
	}

	return ratelimit.Counter{Count: c.count, Acquired: false, TTL: ttl}, nil
}

// Len returns the number of counters currently held, expired or not.
func (s *RateLimitMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.counters)
}

// Ping always succeeds; the memory store has no remote dependency.
func (s *RateLimitMemoryStore) Ping(_ context.Context) error {
	return nil
}

// Sweep deletes expired counters.
func (s *RateLimitMemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}

// StartJanitor sweeps expired counters every interval until ctx is done.
func (s *RateLimitMemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)

	go func() {
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)
