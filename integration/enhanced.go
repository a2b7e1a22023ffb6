package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/health"
	"github.com/drjliddy-max/sales-tax-platform-sub001/performance"
	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
	"github.com/rs/zerolog"
)

const (
	OpSyncTransactions  = "sync_transactions"
	OpSyncProducts      = "sync_products"
	OpSyncCustomers     = "sync_customers"
	OpCalculateTax      = "calculate_tax"
	OpUpdateTransaction = "update_transaction"
	OpHandleWebhook     = "handle_webhook"
	OpTestConnection    = "test_connection"
	OpGetRateLimits     = "get_rate_limits"
)

// minBudgetWait keeps a blocked limiter from spinning
const minBudgetWait = 10 * time.Millisecond

// IntegrationConfig describes one registered integration
type IntegrationConfig struct {
	ID          string
	Platform    Platform
	Credentials Credentials
	RateLimits  ratelimit.Limits
	// Timeout bounds each attempt, CacheTTL how long read results are reused
	Timeout  time.Duration
	CacheTTL time.Duration
	Retry    resilience.RetryOptions
}

// Validate checks the integration declaration against its adapter
func (c IntegrationConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("integration id is required")
	}
	if err := c.Platform.Validate(); err != nil {
		return err
	}
	if c.Credentials != nil {
		if c.Credentials.Platform() != c.Platform {
			return fmt.Errorf("credentials are for %s, integration is %s", c.Credentials.Platform(), c.Platform)
		}
		if err := c.Credentials.Validate(); err != nil {
			return fmt.Errorf("validating credentials: %w", err)
		}
	}
	return nil
}

// services are shared by every adapter of a registry
type services struct {
	breakers  *resilience.Breakers
	retrier   *resilience.Retrier
	optimizer *performance.Optimizer
	cache     *performance.IntelligentCache
	monitor   *health.Monitor
	predictor *health.Predictor
	logger    zerolog.Logger
	now       func() time.Time
}

/* EnhancedAdapter wraps every adapter operation as
 * CircuitBreaker -> Retrier -> rate limit -> cache (reads) -> timeout
 * and records each outcome for performance, health and maintenance reporting
 * A call that cannot be served from cache first waits for rate budget outside
 * the breaker, so a deferral never counts as an integration failure
 */
type EnhancedAdapter struct {
	cfg     IntegrationConfig
	adapter Adapter
	limiter *ratelimit.Limiter
	svc     *services
	logger  zerolog.Logger

	mu    sync.Mutex
	quota RateLimitStatus // last quota reported by the platform
}

var _ Adapter = (*EnhancedAdapter)(nil)

func newEnhancedAdapter(cfg IntegrationConfig, adapter Adapter, svc *services) *EnhancedAdapter {
	return &EnhancedAdapter{
		cfg:     cfg,
		adapter: adapter,
		limiter: ratelimit.New(cfg.RateLimits, ratelimit.WithClock(svc.now)),
		svc:     svc,
		logger: svc.logger.With().
			Str("integration_id", cfg.ID).
			Str("platform", cfg.Platform.String()).
			Logger(),
	}
}

func (a *EnhancedAdapter) ID() string {
	return a.cfg.ID
}

func (a *EnhancedAdapter) Platform() Platform {
	return a.cfg.Platform
}

// Limiter exposes the outbound request budget of the integration
func (a *EnhancedAdapter) Limiter() *ratelimit.Limiter {
	return a.limiter
}

func (a *EnhancedAdapter) SyncTransactions(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	return run(ctx, a, OpSyncTransactions, syncCacheKey(opts), func(ctx context.Context) (SyncResult, error) {
		return a.adapter.SyncTransactions(ctx, opts)
	})
}

func (a *EnhancedAdapter) SyncProducts(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	return run(ctx, a, OpSyncProducts, syncCacheKey(opts), func(ctx context.Context) (SyncResult, error) {
		return a.adapter.SyncProducts(ctx, opts)
	})
}

func (a *EnhancedAdapter) SyncCustomers(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	return run(ctx, a, OpSyncCustomers, syncCacheKey(opts), func(ctx context.Context) (SyncResult, error) {
		return a.adapter.SyncCustomers(ctx, opts)
	})
}

// CalculateTax caches results per request body
func (a *EnhancedAdapter) CalculateTax(ctx context.Context, req Record) (Record, error) {
	sum := sha256.Sum256(req)
	return run(ctx, a, OpCalculateTax, hex.EncodeToString(sum[:]), func(ctx context.Context) (Record, error) {
		return a.adapter.CalculateTax(ctx, req)
	})
}

func (a *EnhancedAdapter) UpdateTransaction(ctx context.Context, id string, patch Record) error {
	_, err := run(ctx, a, OpUpdateTransaction, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.adapter.UpdateTransaction(ctx, id, patch)
	})
	return err
}

func (a *EnhancedAdapter) HandleWebhook(ctx context.Context, req WebhookRequest) error {
	_, err := run(ctx, a, OpHandleWebhook, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.adapter.HandleWebhook(ctx, req)
	})
	return err
}

func (a *EnhancedAdapter) TestConnection(ctx context.Context) error {
	_, err := run(ctx, a, OpTestConnection, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.adapter.TestConnection(ctx)
	})
	return err
}

// GetRateLimits asks the platform for its live quota and feeds it to the
// limiter and the health monitor
func (a *EnhancedAdapter) GetRateLimits(ctx context.Context) (RateLimitStatus, error) {
	status, err := run(ctx, a, OpGetRateLimits, "", func(ctx context.Context) (RateLimitStatus, error) {
		return a.adapter.GetRateLimits(ctx)
	})
	if err != nil {
		return RateLimitStatus{}, err
	}

	if status.Remaining >= 0 && !status.ResetAt.IsZero() {
		a.limiter.Observe(status.Remaining, status.ResetAt)
	}
	a.mu.Lock()
	a.quota = status
	a.mu.Unlock()
	a.svc.monitor.SetRateLimit(a.cfg.ID, a.rateLimitSnapshot(status))
	return status, nil
}

// liveRateLimit reads the local limiter, keeping limits and reset time from
// the last platform quota when one was fetched
func (a *EnhancedAdapter) liveRateLimit() health.RateLimitSnapshot {
	a.mu.Lock()
	quota := a.quota
	a.mu.Unlock()
	if !quota.ResetAt.IsZero() && !quota.ResetAt.After(a.svc.now()) {
		quota.ResetAt = time.Time{}
	}
	return a.rateLimitSnapshot(quota)
}

func (a *EnhancedAdapter) rateLimitSnapshot(status RateLimitStatus) health.RateLimitSnapshot {
	limits := status.Limits
	if limits == (ratelimit.Limits{}) {
		limits = a.limiter.Limits()
	}
	resetAt := status.ResetAt
	if resetAt.IsZero() {
		resetAt = a.limiter.ResetAt()
	}
	return health.RateLimitSnapshot{
		Limits:      limits,
		Remaining:   a.limiter.Remaining(),
		Utilization: a.limiter.Utilization(),
		ResetAt:     resetAt,
	}
}

func (a *EnhancedAdapter) key(op string) string {
	return a.cfg.ID + "/" + op
}

func (a *EnhancedAdapter) cacheScope() string {
	return "cache:" + a.cfg.ID
}

// waitBudget blocks until the limiter admits a request. A context that ends
// first yields ErrRateLimited.
func (a *EnhancedAdapter) waitBudget(ctx context.Context) error {
	for !a.limiter.CanMakeRequest() {
		wait := a.limiter.ResetAt().Sub(a.svc.now())
		if wait < minBudgetWait {
			wait = minBudgetWait
		}
		a.logger.Debug().Dur("wait", wait).Msg("rate limit reached, deferring call")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrRateLimited, ctx.Err())
		case <-timer.C:
		}
	}
	return nil
}

// awaitBudget waits for budget, then records the request against it
func (a *EnhancedAdapter) awaitBudget(ctx context.Context) error {
	if err := a.waitBudget(ctx); err != nil {
		return err
	}
	a.limiter.RecordRequest()
	return nil
}

func (a *EnhancedAdapter) observe(op string, latency time.Duration, err error) {
	if errors.Is(err, ErrRateLimited) {
		// deferred by our own budget, the platform was never asked
		return
	}
	now := a.svc.now()
	success := err == nil

	a.svc.optimizer.RecordMetric(a.key(op), latency, success)
	a.svc.monitor.Record(a.cfg.ID, health.Observation{
		At:          now,
		Latency:     latency,
		Success:     success,
		Unavailable: unavailable(err),
	})
	a.svc.predictor.Record(a.cfg.ID, health.Sample{
		At:        now,
		Latency:   latency,
		ErrorRate: a.svc.monitor.Health(a.cfg.ID).ErrorRate,
	})
}

// run is the resilience pipeline shared by every operation. An empty
// cacheKey bypasses the cache.
func run[T any](ctx context.Context, a *EnhancedAdapter, op, cacheKey string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	key := a.key(op)
	cached := cacheKey != "" && a.cfg.CacheTTL > 0

	call := func(ctx context.Context) (T, error) {
		if err := a.awaitBudget(ctx); err != nil {
			return zero, err
		}
		return performance.WithTimeout(ctx, a.cfg.Timeout, fn)
	}

	// guard runs attempt behind the breaker and the retrier and records the outcome
	guard := func(ctx context.Context, attempt func(context.Context) (T, error)) (T, error) {
		start := a.svc.now()
		result, err := resilience.Execute(a.svc.breakers.Get(key), func() (T, error) {
			return resilience.DoValue(ctx, a.svc.retrier, key, a.cfg.Retry, attempt)
		})
		a.observe(op, a.svc.now().Sub(start), err)
		return result, err
	}

	attempt := func(ctx context.Context) (T, error) {
		if !cached {
			return call(ctx)
		}
		v, err := a.svc.cache.GetWithRefresh(ctx, a.cacheScope(), op+":"+cacheKey, a.cfg.CacheTTL,
			func(ctx context.Context) (any, error) { return call(ctx) },
			// warm passes run outside this call and take the full guard
			func(ctx context.Context) (any, error) {
				if err := a.waitBudget(ctx); err != nil {
					return nil, err
				}
				return guard(ctx, call)
			})
		if err != nil {
			return zero, err
		}
		typed, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("cached %s result has type %T", op, v)
		}
		return typed, nil
	}

	var (
		result T
		err    error
	)
	if !cached || !a.svc.cache.Cached(a.cacheScope(), op+":"+cacheKey, a.cfg.CacheTTL) {
		err = a.waitBudget(ctx)
	}
	if err == nil {
		result, err = guard(ctx, attempt)
	}

	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			a.logger.Debug().Err(err).Str("operation", op).Msg("integration operation deferred")
		} else {
			a.logger.Warn().Err(err).Str("operation", op).Msg("integration operation failed")
		}
		return zero, &OperationError{
			IntegrationID: a.cfg.ID,
			Platform:      a.cfg.Platform,
			Operation:     op,
			At:            a.svc.now(),
			Err:           err,
		}
	}
	return result, nil
}

func syncCacheKey(opts SyncOptions) string {
	return fmt.Sprintf("%d:%s:%d", opts.Since.Unix(), opts.Cursor, opts.Limit)
}
