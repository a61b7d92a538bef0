package util

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping with doubling backoff between
// tries while shouldRetry approves. The context deadline cuts the loop short;
// a deadline hit is reported as the last error seen, so callers treat it like
// any other transient backend fault.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, shouldRetry func(error) bool, fn func() error) error {
	var lastErr error
	delay := baseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == attempts-1 {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
