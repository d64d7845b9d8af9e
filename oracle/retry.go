package oracle

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// retryPolicy configures backoff for transient oracle transport failures.
type retryPolicy struct {
	// maxAttempts is the number of retries after the initial attempt.
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	// jitter adds randomness to the delay to avoid thundering herd
	jitter bool
}

// oracleRetryPolicy keeps retries short: every oracle call already has a
// structural fallback, so long backoff just stalls the loop.
var oracleRetryPolicy = retryPolicy{
	maxAttempts:  2,
	initialDelay: 500 * time.Millisecond,
	maxDelay:     5 * time.Second,
	multiplier:   2.0,
	jitter:       true,
}

// transientError marks a failure worth retrying: rate limiting, server-side
// errors, or network-level faults.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func transient(err error) error {
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// withRetry runs op with exponential backoff on transient failures. The last
// error is returned once attempts are exhausted or the error is permanent.
func withRetry(ctx context.Context, policy retryPolicy, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !isTransient(err) {
		return err
	}

	delay := policy.initialDelay
	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		currentDelay := delay
		if policy.jitter {
			// Add up to 20% jitter
			currentDelay += time.Duration(float64(delay) * 0.2 * rand.Float64())
		}

		logger.Debug("Retrying oracle call",
			"attempt", attempt,
			"max_attempts", policy.maxAttempts,
			"delay", currentDelay.String(),
			"previous_error", err.Error())

		select {
		case <-ctx.Done():
			return serr.Wrap(ctx.Err(), "oracle retry cancelled")
		case <-time.After(currentDelay):
		}

		err = op(ctx)
		if err == nil || !isTransient(err) {
			return err
		}

		delay = time.Duration(float64(delay) * policy.multiplier)
		if delay > policy.maxDelay {
			delay = policy.maxDelay
		}
	}
	return err
}
