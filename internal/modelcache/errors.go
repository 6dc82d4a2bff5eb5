package modelcache

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the path does not exist.
var ErrNotFound = errors.New("modelcache: not found")

// rateLimitedError signals a rejected download attempt for 429 mapping.
type rateLimitedError struct{ retryAfter time.Duration }

func (e rateLimitedError) Error() string {
	return "download rate limit reached, retry in " + e.retryAfter.Round(time.Second).String()
}

// ErrRateLimited constructs a rateLimitedError.
func ErrRateLimited(retryAfter time.Duration) error { return rateLimitedError{retryAfter: retryAfter} }

// IsRateLimited reports whether err indicates a rejected download attempt (return 429).
func IsRateLimited(err error) bool {
	var e rateLimitedError
	return errors.As(err, &e)
}

// RetryAfter returns the wait carried by a rate limit error, or zero.
func RetryAfter(err error) time.Duration {
	var e rateLimitedError
	if errors.As(err, &e) {
		return e.retryAfter
	}
	return 0
}

// modelUnavailableError is returned when the registry has no entry for a key.
type modelUnavailableError struct{ key string }

func (e modelUnavailableError) Error() string { return "model unavailable: " + e.key }

func ErrModelUnavailable(key string) error { return modelUnavailableError{key: key} }

// IsModelUnavailable reports whether err names a model missing from the registry.
func IsModelUnavailable(err error) bool {
	var e modelUnavailableError
	return errors.As(err, &e)
}
