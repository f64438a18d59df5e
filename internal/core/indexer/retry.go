package indexer

import (
	"context"
	"time"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// retryTransient runs fn up to attempts times, backing off exponentially
// between tries. Permanent provider failures and context cancellation stop
// the loop immediately.
func retryTransient(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
