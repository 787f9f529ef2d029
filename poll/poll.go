// Package poll provides condition-based waiting for browser specs.
//
// The harness never sleeps for a fixed duration and hopes: every wait is a
// predicate polled at an interval until it holds or a deadline passes, so a
// fast page costs nothing and a slow one gets the full budget.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline is returned when a predicate never held within its deadline.
var ErrDeadline = errors.New("poll: condition not met before deadline")

// ErrRetriesExhausted is returned when a bounded retry ran out of attempts.
var ErrRetriesExhausted = errors.New("poll: retries exhausted")

// DefaultInterval is the re-check cadence used when none is given.
const DefaultInterval = 250 * time.Millisecond

// Until polls pred at the given interval until it returns true, pred returns
// an error, or ctx is done. A pred error aborts the poll immediately; a
// context deadline surfaces as ErrDeadline.
func Until(ctx context.Context, interval time.Duration, pred func() (bool, error)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := pred()
		if err != nil {
			return fmt.Errorf("poll: predicate: %w", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrDeadline, ctx.Err())
		case <-ticker.C:
		}
	}
}

// UntilTimeout is Until with a fresh deadline instead of a caller context.
func UntilTimeout(timeout, interval time.Duration, pred func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Until(ctx, interval, pred)
}

// Retry performs action up to attempts times, polling check after each one
// until it holds or checkTimeout passes. It returns nil as soon as check
// holds and ErrRetriesExhausted (wrapped) once the bound is spent.
//
// This is the authentication-retry contract: the action fires an external
// trigger (a button click) and check reads a DOM predicate; neither backoff
// nor jitter is applied, only the bounded re-attempt.
func Retry(ctx context.Context, attempts int, checkTimeout, interval time.Duration, action func() error, check func() (bool, error)) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("poll: retry: %w", err)
		}

		if err := action(); err != nil {
			// A failed trigger still consumes an attempt; the next loop
			// iteration retries it.
			lastErr = err
			continue
		}

		err := UntilTimeout(checkTimeout, interval, check)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDeadline) {
			return err
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempts)
}
