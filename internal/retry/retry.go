// Package retry provides a small retry policy shared by the external HTTP
// call sites (speech synthesis, search, document parsing).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried: up to MaxAttempts calls with
// exponentially increasing delays between them (BaseDelay, BaseDelay*Multiplier,
// BaseDelay*Multiplier^2, ...).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Sleep is swapped out in tests. When nil a context-aware timer is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the behavior expected from flaky vendor calls: three
// attempts with 1s then 2s gaps.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Do runs op until it succeeds or the policy is exhausted. The last error is
// returned, wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
		}

		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
