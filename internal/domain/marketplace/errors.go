package marketplace

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when the upstream answered 429. It is a retry signal, not data.
	ErrRateLimited = errors.New("marketplace: rate limited")
	// ErrRateLimitExceeded is returned when bounded retries of a rate-limited request are exhausted
	ErrRateLimitExceeded = errors.New("marketplace: rate limit retries exhausted")
	// ErrResolutionFailure is returned when a barcode has no matching product
	ErrResolutionFailure = errors.New("marketplace: barcode not resolved to a product")
	// ErrValidationFailure is returned for malformed upstream records
	ErrValidationFailure = errors.New("marketplace: invalid record")
	// ErrPreconditionNotMet is returned when a workflow step must wait for another step
	ErrPreconditionNotMet = errors.New("marketplace: precondition not met")
	// ErrPersistenceFailure wraps ledger and workflow store failures
	ErrPersistenceFailure = errors.New("marketplace: persistence failure")

	ErrInvalidAccountID      = errors.New("marketplace: invalid account id")
	ErrAccountNotConfigured  = errors.New("marketplace: account not configured")
	ErrInvalidResponse       = errors.New("marketplace: invalid upstream response")
	ErrUpstreamUnavailable   = errors.New("marketplace: upstream unavailable")
	ErrEmptyStockAmountBatch = errors.New("marketplace: empty stock amount batch")
)

// RemoteError is a non-2xx, non-429 upstream response
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("marketplace: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// RateLimitedError carries the delay the upstream asked for, if any
type RateLimitedError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("marketplace: %s rate limited, retry after %s", e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("marketplace: %s rate limited", e.Endpoint)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// IsPermanent reports whether err concerns a single record that must be dropped rather than retried
func IsPermanent(err error) bool {
	return errors.Is(err, ErrResolutionFailure) || errors.Is(err, ErrValidationFailure)
}

// IsRemote reports whether err is an upstream RemoteError and returns it
func IsRemote(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}
