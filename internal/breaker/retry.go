// v1
// internal/breaker/retry.go
package breaker

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy controls how often a failed call is repeated. Attempts counts
// retries after the first call, so the zero value never retries.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration // per attempt, 0 = caller's deadline only
}

// Do runs op through the breaker, retrying failures per p. An open breaker
// is returned immediately and never retried.
func (b *Breaker) Do(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		attemptCtx, cancel := p.withAttemptContext(ctx)
		err := b.Execute(attemptCtx, op)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrOpen) || attempts > p.Attempts {
			return err
		}
		b.logger.Info("operation_retry", "attempt", attempts, "backoff", p.Backoff.String())
		if waitErr := p.waitBackoff(ctx); waitErr != nil {
			return waitErr
		}
	}
}

func (p RetryPolicy) withAttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.Timeout)
}

func (p RetryPolicy) waitBackoff(ctx context.Context) error {
	if p.Backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(p.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
