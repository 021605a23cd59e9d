package messaging_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/ratelimit-demo-go/internal/analytics"
	"github.com/serroba/ratelimit-demo-go/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAsyncPublisher(t *testing.T) {
	t.Run("does not block callers on a slow broker", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)

		var (
			mu   sync.Mutex
			keys []string
		)

		async := messaging.NewAsyncPublisher(func(event *analytics.DecisionEvent) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release

			mu.Lock()
			keys = append(keys, event.Key)
			mu.Unlock()

			return nil
		}, 2, zap.NewNop())

		start := time.Now()

		// One event is held by the stalled worker, two fill the buffer.
		require.NoError(t, async.Publish(&analytics.DecisionEvent{Key: "rate:a"}))
		<-started
		require.NoError(t, async.Publish(&analytics.DecisionEvent{Key: "rate:b"}))
		require.NoError(t, async.Publish(&analytics.DecisionEvent{Key: "rate:c"}))

		assert.ErrorIs(t, async.Publish(&analytics.DecisionEvent{Key: "rate:d"}), messaging.ErrBufferFull)
		assert.Less(t, time.Since(start), time.Second)

		close(release)
		require.NoError(t, async.Shutdown())

		assert.Equal(t, []string{"rate:a", "rate:b", "rate:c"}, keys)
	})

	t.Run("failures are logged and do not stop the worker", func(t *testing.T) {
		var calls int

		async := messaging.NewAsyncPublisher(func(_ *analytics.DecisionEvent) error {
			calls++

			return errors.New("stream down")
		}, 4, zap.NewNop())

		require.NoError(t, async.Publish(&analytics.DecisionEvent{}))
		require.NoError(t, async.Publish(&analytics.DecisionEvent{}))
		require.NoError(t, async.Shutdown())

		assert.Equal(t, 2, calls)
	})

	t.Run("rejects events after shutdown", func(t *testing.T) {
		async := messaging.NewAsyncPublisher(func(_ *analytics.DecisionEvent) error { return nil }, 1, zap.NewNop())

		require.NoError(t, async.Shutdown())
		require.NoError(t, async.Shutdown())

		assert.ErrorIs(t, async.Publish(&analytics.DecisionEvent{}), messaging.ErrPublisherClosed)
	})
}
