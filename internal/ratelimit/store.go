package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of a fixed-window counter after an Acquire call.
type Counter struct {
	// Count is the number of operations recorded in the current window.
	Count int64
	// Acquired reports whether this call consumed a slot.
	Acquired bool
	// TTL is the remaining lifetime of the window as reported by the store.
	TTL time.Duration
}

// Store defines the interface for fixed-window counter storage.
type Store interface {
	// Acquire atomically performs the fixed-window check-and-increment for key:
	// an absent counter is created at 1 with the given window as its TTL, a
	// counter below limit is incremented without touching its TTL, and a counter
	// at or above limit is left unchanged.
	//
	// Failures to reach the store wrap ErrStoreUnavailable, values that are not
	// integers wrap ErrMalformedCounter.
	Acquire(ctx context.Context, key string, limit int64, window time.Duration) (Counter, error)
}
