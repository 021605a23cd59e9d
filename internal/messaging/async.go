package messaging

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrBufferFull is returned when the hand-off queue cannot take another event.
	ErrBufferFull = errors.New("messaging: publish buffer full")
	// ErrPublisherClosed is returned after Shutdown.
	ErrPublisherClosed = errors.New("messaging: publisher closed")
)

// AsyncPublisher queues events and publishes them from a single background
// goroutine so callers never wait on the broker. When the queue is full the
// event is dropped and ErrBufferFull returned.
type AsyncPublisher[T any] struct {
	publish Publish[T]
	queue   chan *T
	logger  *zap.Logger
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts a background publisher with room for buffer events.
func NewAsyncPublisher[T any](publish Publish[T], buffer int, logger *zap.Logger) *AsyncPublisher[T] {
	a := &AsyncPublisher[T]{
		publish: publish,
		queue:   make(chan *T, buffer),
		logger:  logger,
		done:    make(chan struct{}),
	}

	go a.run()

	return a
}

// Publish enqueues event without blocking. It satisfies Publish[T].
func (a *AsyncPublisher[T]) Publish(event *T) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrPublisherClosed
	}

	select {
	case a.queue <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

func (a *AsyncPublisher[T]) run() {
	defer close(a.done)

	for event := range a.queue {
		if err := a.publish(event); err != nil {
			a.logger.Error("failed to publish queued event", zap.Error(err))
		}
	}
}

// Shutdown stops accepting events and waits until the queue is drained.
func (a *AsyncPublisher[T]) Shutdown() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done

	return nil
}
