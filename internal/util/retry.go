package util

import (
	"context"
	"time"
)

// retryMaxDelay caps backoff growth so a long retry chain against a stalled
// server never sleeps into the minutes.
const retryMaxDelay = 5 * time.Second

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay and capped at retryMaxDelay. It returns nil on the first
// successful call, or the last error if all attempts fail. The function
// respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = nextDelay(delay)
		}
	}

	return err
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}
