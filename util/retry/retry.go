// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package retry

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ErrAttemptsExhausted is returned by Bounded when every attempt failed with a
// retryable error. The last error is joined to it.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

type Backoff struct {
	Attempts    int
	Interval    time.Duration
	MaxInterval time.Duration
}

// Delay returns the wait before attempt n+1, doubling from Interval up to MaxInterval.
func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.Interval
	for i := 0; i < attempt; i++ {
		delay *= 2
		if b.MaxInterval > 0 && delay >= b.MaxInterval {
			return b.MaxInterval
		}
	}
	return delay
}

// Bounded calls fn until it succeeds, returns an error that shouldRetry rejects,
// or b.Attempts calls have been made.
func Bounded[T any](ctx context.Context, b Backoff, shouldRetry func(error) bool, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		got, err := fn(attempt)
		if err == nil {
			return got, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		delay := b.Delay(attempt)
		log.Debug("retrying", "attempt", attempt+1, "of", attempts, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, errors.Join(ErrAttemptsExhausted, lastErr)
}
