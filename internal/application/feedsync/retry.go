package feedsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// Default retry policy values
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 60 * time.Second
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy bounds how long a rate-limited request is retried.
// The same request is repeated after Delay (or the upstream's Retry-After when longer)
// until it succeeds, fails otherwise, or MaxAttempts calls were made.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// MaxDelay caps an upstream Retry-After hint; zero means no cap
	MaxDelay    time.Duration
	Sleep       SleepFunc
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		MaxDelay:    5 * time.Minute,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// wait returns the delay before the next attempt after err
func (p RetryPolicy) wait(err error) time.Duration {
	d := p.Delay
	var limited *marketplace.RateLimitedError
	if errors.As(err, &limited) && limited.RetryAfter > d {
		d = limited.RetryAfter
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it returns something other than a rate-limit signal.
// onWait is called before each backoff sleep and may be nil.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onWait func(attempt int, d time.Duration)) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, marketplace.ErrRateLimited) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		d := p.wait(err)
		if onWait != nil {
			onWait(attempt, d)
		}
		if sleepErr := p.Sleep(ctx, d); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("%w: %d attempts: %w", marketplace.ErrRateLimitExceeded, p.MaxAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
