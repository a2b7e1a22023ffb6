package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
)

// ErrTimeout is returned when the timer wins the race against an operation
var ErrTimeout = resilience.ErrTimeout

// DefaultTimeout bounds operations that do not configure their own deadline
const DefaultTimeout = 30 * time.Second

/* WithTimeout races fn against a timer of length d.
 * fn keeps running after the timer fires and its result is discarded, so a
 * timeout means the outcome is unknown, not that nothing happened upstream.
 * fn only observes cancellation of ctx itself.
 */
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		d = DefaultTimeout
	}

	type result struct {
		value T
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		value, err := fn(ctx)
		resultCh <- result{value, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
