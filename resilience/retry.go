package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryOptions configures one retried operation
type RetryOptions struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryCondition func(error) bool
}

// DefaultRetryOptions retries transient failures three times from 1s up to 30s
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		RetryCondition: IsRetryable,
	}
}

// maxJitter bounds the uniform jitter added to every delay
const maxJitter = time.Second

/* jitteredBackOff yields min(base * 2^attempt + jitter, max)
 * attempt counts from zero for the first retry
 */
type jitteredBackOff struct {
	base    time.Duration
	max     time.Duration
	attempt int
	jitter  func() time.Duration
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	exp := float64(b.base) * math.Pow(2, float64(b.attempt))
	b.attempt++
	if exp >= float64(b.max) {
		return b.max
	}
	delay := time.Duration(exp) + b.jitter()
	if delay > b.max {
		return b.max
	}
	return delay
}

func (b *jitteredBackOff) Reset() {
	b.attempt = 0
}

// Retrier retries operations keyed by identity so that concurrent retries of
// distinct logical operations keep separate counters
type Retrier struct {
	mu       sync.Mutex
	attempts map[string]int
	logger   zerolog.Logger

	jitter   func() time.Duration
	newTimer func() backoff.Timer
}

// NewRetrier creates a retrier with uniform jitter in [0, 1s)
func NewRetrier(logger zerolog.Logger) *Retrier {
	return &Retrier{
		attempts: make(map[string]int),
		logger:   logger,
		jitter: func() time.Duration {
			return rand.N(maxJitter)
		},
	}
}

// Do runs op, retrying retryable failures with exponential backoff.
// Non-retryable errors return immediately after a single invocation; after
// MaxRetries retries the last error is returned.
func (r *Retrier) Do(ctx context.Context, key string, opts RetryOptions, op func(context.Context) error) error {
	condition := opts.RetryCondition
	if condition == nil {
		condition = IsRetryable
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultRetryOptions().MaxDelay
	}

	var policy backoff.BackOff = &jitteredBackOff{
		base:   opts.BaseDelay,
		max:    opts.MaxDelay,
		jitter: r.jitter,
	}
	if opts.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(opts.MaxRetries))
	} else {
		policy = &backoff.StopBackOff{}
	}
	policy = backoff.WithContext(policy, ctx)

	operation := func() error {
		err := op(ctx)
		if err != nil && !condition(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		n := r.increment(key)
		r.logger.Debug().
			Err(err).
			Str("operation", key).
			Int("retry", n).
			Dur("delay", delay).
			Msg("retrying operation")
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer)
	if err == nil {
		r.clear(key)
	}
	return err
}

// DoValue runs a typed operation through r
func DoValue[T any](ctx context.Context, r *Retrier, key string, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, key, opts, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Attempts returns the retries performed so far for key since its last success
func (r *Retrier) Attempts(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

func (r *Retrier) increment(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}

func (r *Retrier) clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}
