package retry

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidDelay is returned when a policy delay is negative.
	ErrInvalidDelay = errors.New("retry delays cannot be negative")
)
