package ratelimit

import (
	"fmt"
	"time"
)

const (
	// DefaultLimit is the number of requests allowed per window when unset.
	DefaultLimit int64 = 5
	// DefaultWindow is the fixed window length when unset.
	DefaultWindow = 60 * time.Second
	// DefaultKeyPrefix namespaces counter keys in the store.
	DefaultKeyPrefix = "rate:"
)

// Policy is the process-wide rate limit configuration.
// It is built once at startup and passed by value into limiters.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// NewPolicy validates limit and window and returns the resulting policy.
func NewPolicy(limit int64, window time.Duration) (Policy, error) {
	if limit <= 0 {
		return Policy{}, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidPolicy, limit)
	}

	if window <= 0 {
		return Policy{}, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidPolicy, window)
	}

	return Policy{Limit: limit, Window: window}, nil
}

// DefaultPolicy returns 5 requests per 60 seconds.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.Limit, p.Window)
}

// Key namespaces a client identity for the counter store.
func Key(prefix, identity string) string {
	return prefix + identity
}
