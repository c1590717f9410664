package scheduler

import (
	"context"
	"errors"
	"net/http"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrUnknownJobKind is returned for a job the executor cannot run
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrJobAlreadyInProgress is returned when a job of the same kind is running for the account
	ErrJobAlreadyInProgress = errors.New("job already in progress for this account")
)

// retryable reports whether a failed job may succeed when run again.
// Missing configuration, rejected credentials and cancellation are final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrUnknownJobKind),
		errors.Is(err, marketplace.ErrAccountNotConfigured),
		errors.Is(err, marketplace.ErrInvalidAccountID):
		return false
	}
	if remote, ok := marketplace.IsRemote(err); ok {
		switch remote.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return true
}
