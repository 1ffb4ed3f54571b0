// Package retryx wraps github.com/sethvargo/go-retry with a bounded policy
// for waiting out eventual-consistency lag in the cloud control plane.
package retryx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/sethvargo/go-retry"
)

// Policy bounds a retry loop by attempt count and by total wall time.
// Both bounds always apply; zero values fall back to DefaultPolicy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxElapsed  time.Duration
}

// DefaultPolicy suits AWS bucket propagation: up to ~30s across 8 attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 8,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		MaxElapsed:  30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Nanosecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = d.MaxElapsed
	}
	return p
}

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	b = retry.WithMaxDuration(p.MaxElapsed, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do returns it unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, or the policy is
// exhausted. OnRetry, when set, is called before every retry with the error
// that caused it.
//
// Exhaustion returns common.ErrPropagationTimeout wrapping the last error.
// Context cancellation is returned as-is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	p = p.normalized()

	attempt := 0
	var last error
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 && onRetry != nil {
			onRetry(attempt, last)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if last != nil && errors.Is(err, last) {
		return fmt.Errorf("%w after %d attempts: %w", common.ErrPropagationTimeout, attempt, last)
	}
	return err
}
