// Package retry provides exponential backoff for transient failures.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

const (
	// DefaultAttempts is the total number of tries, including the first.
	DefaultAttempts = 3
	// DefaultBaseDelay is the wait before the first retry; it doubles each
	// subsequent attempt.
	DefaultBaseDelay = 500 * time.Millisecond
)

// Policy controls retry behavior. The zero value is not usable; construct
// with NewPolicy.
type Policy struct {
	attempts  int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPolicy builds a Policy with the given attempt count and base delay.
// Values below the minimum fall back to the defaults.
func NewPolicy(attempts int, baseDelay time.Duration) *Policy {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Policy{attempts: attempts, baseDelay: baseDelay, sleep: sleepCtx}
}

// Default returns the standard policy: three attempts, 500ms base delay.
func Default() *Policy {
	return NewPolicy(DefaultAttempts, DefaultBaseDelay)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. Only errors domain.IsRetryable accepts are
// retried. The context is honored between attempts.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay << (attempt - 1)
			if err := p.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry: %s: %w", op, err)
			}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !domain.IsRetryable(last) {
			return last
		}
	}
	return fmt.Errorf("retry: %s: exhausted %d attempts: %w", op, p.attempts, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
