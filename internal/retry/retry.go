// Package retry owns the single retry decision point for I/O against storage,
// the orchestrator and the registries.
package retry

import (
	"context"
	"errors"
	"time"

	"courtclip/internal/config"
	"courtclip/internal/services"
)

// Policy bounds the number of attempts and the backoff between them. Delays
// start at InitialBackoff and double up to MaxBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// FromConfig builds the operation policy described by the retry section.
func FromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMillis) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMillis) * time.Millisecond,
	}
}

// PollPolicy builds the fixed-interval policy used to wait on asynchronous
// completion, such as an upload becoming visible.
func PollPolicy(cfg config.Retry) Policy {
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	return Policy{MaxAttempts: cfg.PollAttempts, InitialBackoff: interval, MaxBackoff: interval}
}

// Once is a policy that never retries.
func Once() Policy { return Policy{MaxAttempts: 1} }

// WithSleep returns a copy of p that waits using fn. Intended for tests.
func (p Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = fn
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying regardless of its marker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var target *permanentError
	return errors.As(err, &target)
}

// Retryable reports whether err may succeed on a later attempt. Permanent
// errors and context cancellation never qualify. Unclassified errors are
// treated as transient.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsPermanent(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case services.Retryable(err):
		return true
	case services.Kind(err) == "failure":
		return true
	default:
		return false
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned with any Permanent wrapper
// removed.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return unwrapPermanent(lastErr)
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) || attempt == attempts-1 {
			break
		}
		if err := p.wait(ctx, delay); err != nil {
			return unwrapPermanent(lastErr)
		}
		if next := delay * 2; p.MaxBackoff <= 0 || next <= p.MaxBackoff {
			delay = next
		} else {
			delay = p.MaxBackoff
		}
	}
	return unwrapPermanent(lastErr)
}

// Poll calls check until it reports done, returns an error, or the attempt
// budget is spent. Exhaustion yields an error wrapping services.ErrTimeout.
func (p Policy) Poll(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	err := p.Do(ctx, func(ctx context.Context) error {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if !done {
			return errNotYet
		}
		return nil
	})
	if errors.Is(err, errNotYet) {
		return services.Wrap(services.ErrTimeout, "", "poll", "condition not met within attempt budget", nil)
	}
	return err
}

var errNotYet = services.Wrap(services.ErrTimeout, "", "poll", "not yet", nil)

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unwrapPermanent(err error) error {
	var target *permanentError
	if errors.As(err, &target) && err == error(target) {
		return target.err
	}
	return err
}
