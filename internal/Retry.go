package internal

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetryAttempts is the fixed attempt ceiling for every remote call.
const DefaultRetryAttempts = 3

// DefaultRetryDelay is the initial backoff delay; it doubles each retry.
const DefaultRetryDelay = 1000 * time.Millisecond

// RetryableFunc represents a zero-argument operation producing a result
// or an error, executed under a cancellation context.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryExecutor is the single place failure/backoff policy is defined.
// Every network call in the system (manifest, chunk, save upload and
// download) runs through it.
type RetryExecutor struct {
	Attempts     int
	InitialDelay time.Duration

	// sleep suspends only the calling goroutine and honors ctx
	// cancellation. Tests replace it to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor returns an executor with the default policy.
func NewRetryExecutor() *RetryExecutor {
	return &RetryExecutor{
		Attempts:     DefaultRetryAttempts,
		InitialDelay: DefaultRetryDelay,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry executes fn up to the attempt ceiling with exponential backoff,
// propagating the last error once attempts are exhausted. The label only
// feeds log output.
func Retry[T any](ctx context.Context, ex *RetryExecutor, label string, fn RetryableFunc[T]) (T, error) {
	var zero T

	attempts := ex.Attempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	delay := ex.InitialDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	sleep := ex.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		PushLogWarning(nil, fmt.Sprintf("%s failed (attempt %d/%d), retrying in %v: %v",
			label, attempt, attempts, delay, err))

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}

	PushLogError(nil, fmt.Sprintf("%s failed after %d attempts: %v", label, attempts, lastErr))
	return zero, lastErr
}
