package ratelimit

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a request from the given key should be allowed.
	Allow(ctx context.Context, key string) (Decision, error)
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Count      int64
	Remaining  int64
	ResetAfter time.Duration
}

// FixedWindowLimiter implements rate limiting using a fixed window counter.
//
// Windows start at the first request for a key and last for the policy window.
// Up to twice the limit can pass across the boundary of two adjacent windows.
type FixedWindowLimiter struct {
	store  Store
	policy Policy
}

// NewFixedWindowLimiter creates a new fixed window rate limiter.
func NewFixedWindowLimiter(store Store, policy Policy) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		policy: policy,
	}
}

// Policy returns the limiter's policy.
func (l *FixedWindowLimiter) Policy() Policy {
	return l.policy
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	counter, err := l.store.Acquire(ctx, key, l.policy.Limit, l.policy.Window)
	if err != nil {
		return Decision{}, err
	}

	remaining := l.policy.Limit - counter.Count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    counter.Acquired,
		Limit:      l.policy.Limit,
		Count:      counter.Count,
		Remaining:  remaining,
		ResetAfter: counter.TTL,
	}, nil
}

// IsAllowed reports whether the operation identified by key is permitted.
// Store failures are returned as errors, never as a decision.
func (l *FixedWindowLimiter) IsAllowed(ctx context.Context, key string) (bool, error) {
	decision, err := l.Allow(ctx, key)
	if err != nil {
		return false, err
	}

	return decision.Allowed, nil
}

// Compile-time check.
var _ Limiter = (*FixedWindowLimiter)(nil)
