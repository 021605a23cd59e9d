package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serroba/ratelimit-demo-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func TestRateLimitMemoryStore(t *testing.T) {
	t.Run("creates counter at one with window ttl", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore()

		c, err := s.Acquire(context.Background(), "key1", 3, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Count)
		assert.True(t, c.Acquired)
		assert.Equal(t, time.Minute, c.TTL)
	})

	t.Run("increments below limit and stops at limit", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore()

		for i := int64(1); i <= 3; i++ {
			c, err := s.Acquire(context.Background(), "key1", 3, time.Minute)

			require.NoError(t, err)
			assert.Equal(t, i, c.Count)
			assert.True(t, c.Acquired)
		}

		c, err := s.Acquire(context.Background(), "key1", 3, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(3), c.Count, "denied calls must not increment")
		assert.False(t, c.Acquired)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore()

		_, _ = s.Acquire(context.Background(), "key1", 5, time.Minute)
		_, _ = s.Acquire(context.Background(), "key1", 5, time.Minute)

		c, err := s.Acquire(context.Background(), "key2", 5, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Count, "key2 should have its own counter")
	})

	t.Run("increment does not extend ttl", func(t *testing.T) {
		clock := newFakeClock()
		s := store.NewRateLimitMemoryStore(store.WithClock(clock.Now))

		_, _ = s.Acquire(context.Background(), "key1", 5, time.Minute)

		clock.Advance(20 * time.Second)

		c, err := s.Acquire(context.Background(), "key1", 5, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, 40*time.Second, c.TTL)
	})

	t.Run("recreates counter after expiry", func(t *testing.T) {
		clock := newFakeClock()
		s := store.NewRateLimitMemoryStore(store.WithClock(clock.Now))

		_, _ = s.Acquire(context.Background(), "key1", 1, time.Minute)
		denied, _ := s.Acquire(context.Background(), "key1", 1, time.Minute)
		assert.False(t, denied.Acquired)

		clock.Advance(time.Minute)

		c, err := s.Acquire(context.Background(), "key1", 1, time.Minute)

		require.NoError(t, err)
		assert.True(t, c.Acquired)
		assert.Equal(t, int64(1), c.Count)
	})

	t.Run("sweep removes expired counters only", func(t *testing.T) {
		clock := newFakeClock()
		s := store.NewRateLimitMemoryStore(store.WithClock(clock.Now))

		_, _ = s.Acquire(context.Background(), "short", 5, time.Second)
		_, _ = s.Acquire(context.Background(), "long", 5, time.Hour)

		clock.Advance(2 * time.Second)
		s.Sweep()

		assert.Equal(t, 1, s.Len())
	})

	t.Run("concurrent acquires never overshoot", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore()

		const workers = 50

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			acquired int
		)

		for range workers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				c, err := s.Acquire(context.Background(), "hot", 10, time.Minute)
				if err == nil && c.Acquired {
					mu.Lock()
					acquired++
					mu.Unlock()
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, 10, acquired)
	})
}

func TestRateLimitMemoryStore_Janitor(t *testing.T) {
	s := store.NewRateLimitMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = s.Acquire(ctx, "key1", 5, 10*time.Millisecond)

	s.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}
