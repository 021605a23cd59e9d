package ratelimit

import "errors"

var (
	// ErrStoreUnavailable is returned when the counter store cannot be reached.
	// Callers choose between failing open and failing closed; it must never be
	// treated as a rate limit rejection.
	ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

	// ErrMalformedCounter is returned when a stored count is not an integer.
	ErrMalformedCounter = errors.New("ratelimit: malformed counter value")

	// ErrInvalidPolicy is returned by NewPolicy for non-positive limits or windows.
	ErrInvalidPolicy = errors.New("ratelimit: invalid policy")
)
