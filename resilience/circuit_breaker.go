package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// State is the position of a circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and admits a trial call after 60s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

/* CircuitBreaker fails fast once an operation is unhealthy
 * closed -> open after FailureThreshold consecutive failures
 * open -> half-open once RecoveryTimeout elapses, admitting one trial
 * half-open -> closed on success, back to open on failure
 * Transitions are evaluated lazily on each call, there is no timer
 */
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker for a single operation key
func NewCircuitBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	threshold := uint32(cfg.FailureThreshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &CircuitBreaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the operation key the breaker guards
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute runs fn unless the breaker is open. A rejected call returns
// ErrCircuitOpen and fn is not invoked.
func (b *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State returns the current state, applying any elapsed recovery timeout
func (b *CircuitBreaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Failures returns the current consecutive failure count
func (b *CircuitBreaker) Failures() int {
	return int(b.cb.Counts().ConsecutiveFailures)
}

// Execute runs a typed operation through b
func Execute[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if v, ok := result.(T); ok {
			return v, err
		}
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

// BreakerSnapshot is a read-only view of one breaker
type BreakerSnapshot struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Failures int    `json:"failures"`
}

// Breakers owns one circuit breaker per operation key
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   BreakerConfig
	logger   zerolog.Logger
}

// NewBreakers creates an empty breaker registry using cfg for every key
func NewBreakers(cfg BreakerConfig, logger zerolog.Logger) *Breakers {
	return &Breakers{
		breakers: make(map[string]*CircuitBreaker),
		config:   cfg,
		logger:   logger,
	}
}

// Get returns the breaker for key, creating it closed if it does not exist
func (r *Breakers) Get(key string) *CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = NewCircuitBreaker(key, r.config, r.logger)
	r.breakers[key] = b
	return b
}

// Snapshot returns the state of every breaker whose key has the given prefix
func (r *Breakers) Snapshot(prefix string) []BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BreakerSnapshot, 0, len(r.breakers))
	for key, b := range r.breakers {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		out = append(out, BreakerSnapshot{
			Name:     key,
			State:    b.State(),
			Failures: b.Failures(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
