package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/health"
	"github.com/drjliddy-max/sales-tax-platform-sub001/performance"
	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
	"github.com/rs/zerolog"
)

// Settings are the defaults applied to integrations that leave a field unset
type Settings struct {
	Breaker   resilience.BreakerConfig
	Retry     resilience.RetryOptions
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
	// WarmTopN bounds how many popular keys a cache warm pass re-primes
	WarmTopN int
}

// DefaultSettings follow the platform wide defaults
func DefaultSettings() Settings {
	return Settings{
		Breaker:   resilience.DefaultBreakerConfig(),
		Retry:     resilience.DefaultRetryOptions(),
		Timeout:   performance.DefaultTimeout,
		CacheTTL:  5 * time.Minute,
		CacheSize: performance.DefaultConfig().CacheSize,
		WarmTopN:  performance.DefaultWarmTopN,
	}
}

// PerformanceReport is the latency and cache view of one integration
type PerformanceReport struct {
	IntegrationID string                       `json:"integration_id"`
	Overall       performance.Stats            `json:"overall"`
	Operations    map[string]performance.Stats `json:"operations"`
	Breakers      []resilience.BreakerSnapshot `json:"breakers"`
	PopularKeys   []performance.KeyPopularity  `json:"popular_keys"`
	RateLimit     *health.RateLimitSnapshot    `json:"rate_limit,omitempty"`
}

// Status is the exported summary of one integration
type Status struct {
	ID           string
	HealthScore  int
	BreakerState resilience.State
}

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.svc.now = now
	}
}

/* Registry owns the integrations of the process and the shared resilience
 * services behind them. It is created by main and passed by reference.
 */
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*EnhancedAdapter
	settings Settings
	scorer   *health.Scorer
	svc      *services
}

// NewRegistry creates an empty registry
func NewRegistry(settings Settings, logger zerolog.Logger, opts ...Option) *Registry {
	defaults := DefaultSettings()
	if settings.Timeout <= 0 {
		settings.Timeout = defaults.Timeout
	}
	if settings.CacheTTL < 0 {
		settings.CacheTTL = 0
	}

	r := &Registry{
		adapters: make(map[string]*EnhancedAdapter),
		settings: settings,
		scorer:   health.NewScorer(),
		svc: &services{
			breakers:  resilience.NewBreakers(settings.Breaker, logger),
			retrier:   resilience.NewRetrier(logger),
			monitor:   health.NewMonitor(),
			predictor: health.NewPredictor(),
			logger:    logger,
			now:       time.Now,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.svc.optimizer = performance.NewOptimizer(
		performance.Config{CacheSize: settings.CacheSize},
		performance.WithClock(r.svc.now),
	)
	r.svc.cache = performance.NewIntelligentCache(r.svc.optimizer, settings.WarmTopN, logger)
	return r
}

// Register wraps adapter and makes it available under cfg.ID
func (r *Registry) Register(cfg IntegrationConfig, adapter Adapter) (*EnhancedAdapter, error) {
	if adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating integration: %w", err)
	}
	if adapter.Platform() != cfg.Platform {
		return nil, fmt.Errorf("adapter platform %s does not match integration platform %s", adapter.Platform(), cfg.Platform)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = r.settings.Timeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = r.settings.CacheTTL
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = r.settings.Retry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[cfg.ID]; exists {
		return nil, fmt.Errorf("integration already registered: %s", cfg.ID)
	}
	enhanced := newEnhancedAdapter(cfg, adapter, r.svc)
	r.adapters[cfg.ID] = enhanced
	r.svc.monitor.SetRateLimitSource(cfg.ID, enhanced.liveRateLimit)

	r.svc.logger.Info().
		Str("integration_id", cfg.ID).
		Str("platform", cfg.Platform.String()).
		Msg("integration registered")
	return enhanced, nil
}

// Get returns the wrapped adapter of id
func (r *Registry) Get(id string) (*EnhancedAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// IDs lists the registered integrations in order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Health derives the health of id, reading its rate limit window live
func (r *Registry) Health(id string) (health.IntegrationHealth, error) {
	if _, err := r.Get(id); err != nil {
		return health.IntegrationHealth{}, err
	}
	return r.svc.monitor.Health(id), nil
}

// HealthScore scores the current health of id
func (r *Registry) HealthScore(id string) (health.Score, error) {
	h, err := r.Health(id)
	if err != nil {
		return health.Score{}, err
	}
	return r.scorer.Score(h.Input()), nil
}

func (r *Registry) MaintenancePredictions(id string) (health.Forecast, error) {
	if _, err := r.Get(id); err != nil {
		return health.Forecast{}, err
	}
	return r.svc.predictor.Predict(id), nil
}

// PerformanceMetrics summarizes the operation series of id
func (r *Registry) PerformanceMetrics(id string) (PerformanceReport, error) {
	a, err := r.Get(id)
	if err != nil {
		return PerformanceReport{}, err
	}

	prefix := a.key("")
	ops := make(map[string]performance.Stats)
	for key, st := range r.svc.optimizer.MetricsByPrefix(prefix) {
		ops[key[len(prefix):]] = st
	}

	return PerformanceReport{
		IntegrationID: id,
		Overall:       r.svc.optimizer.Aggregate(prefix),
		Operations:    ops,
		Breakers:      r.svc.breakers.Snapshot(prefix),
		PopularKeys:   r.svc.cache.Popular(a.cacheScope()),
		RateLimit:     r.svc.monitor.Health(id).RateLimit,
	}, nil
}

// RefreshRateLimits pulls the live quota of id into its limiter and health
func (r *Registry) RefreshRateLimits(ctx context.Context, id string) (health.RateLimitSnapshot, error) {
	a, err := r.Get(id)
	if err != nil {
		return health.RateLimitSnapshot{}, err
	}
	status, err := a.GetRateLimits(ctx)
	if err != nil {
		return health.RateLimitSnapshot{}, fmt.Errorf("refreshing rate limits: %w", err)
	}
	return a.rateLimitSnapshot(status), nil
}

// WarmCache re-primes the popular read results of id that keep missing.
// Each refresh goes through the operation's breaker, so keys behind an open
// breaker are reported as errors and the platform is not called.
func (r *Registry) WarmCache(ctx context.Context, id string) (int, error) {
	a, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return r.svc.cache.WarmPopularCache(ctx, a.cacheScope())
}

// Statuses summarizes every integration with its worst breaker state
func (r *Registry) Statuses() []Status {
	ids := r.IDs()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		score, err := r.HealthScore(id)
		if err != nil {
			continue
		}
		state := resilience.StateClosed
		for _, b := range r.svc.breakers.Snapshot(id + "/") {
			if b.State == resilience.StateOpen {
				state = resilience.StateOpen
				break
			}
			if b.State == resilience.StateHalfOpen {
				state = resilience.StateHalfOpen
			}
		}
		out = append(out, Status{ID: id, HealthScore: score.Score, BreakerState: state})
	}
	return out
}
