package performance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Config bounds the optimizer cache
type Config struct {
	CacheSize int
	// MaxTTL is the longest any entry survives regardless of the per-call ttl
	MaxTTL time.Duration
}

// DefaultConfig holds 1000 entries for at most an hour
func DefaultConfig() Config {
	return Config{
		CacheSize: 1000,
		MaxTTL:    time.Hour,
	}
}

type entry struct {
	value    any
	cachedAt time.Time
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		o.now = now
	}
}

/* Optimizer memoizes results for a caller supplied ttl and keeps a bounded
 * latency series per key. Concurrent misses for the same key share a single
 * fetch.
 */
type Optimizer struct {
	cache *expirable.LRU[string, entry]
	group singleflight.Group

	mu     sync.Mutex
	series map[string]*ring

	now func() time.Time
}

// NewOptimizer creates an optimizer backed by an expiring LRU cache
func NewOptimizer(cfg Config, opts ...Option) *Optimizer {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultConfig().MaxTTL
	}

	o := &Optimizer{
		cache:  expirable.NewLRU[string, entry](cfg.CacheSize, nil, cfg.MaxTTL),
		series: make(map[string]*ring),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCaching returns the value cached under key while it is younger than ttl,
// otherwise calls fetch and caches its result. Errors are never cached.
func (o *Optimizer) WithCaching(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	if e, ok := o.lookup(key, ttl); ok {
		o.record(key, Sample{At: o.now(), Success: true, Cached: true, CacheHit: true})
		return e.value, nil
	}

	v, err, _ := o.group.Do(key, func() (any, error) {
		// another caller may have filled the entry while we waited
		if e, ok := o.lookup(key, ttl); ok {
			return e.value, nil
		}

		start := o.now()
		value, err := fetch(ctx)
		o.record(key, Sample{At: o.now(), Latency: o.now().Sub(start), Success: err == nil, Cached: true})
		if err != nil {
			return nil, err
		}
		o.cache.Add(key, entry{value: value, cachedAt: o.now()})
		return value, nil
	})
	return v, err
}

// Cached is the typed form of WithCaching
func Cached[T any](ctx context.Context, o *Optimizer, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := o.WithCaching(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cached value for %q has type %T", key, v)
	}
	return typed, nil
}

// Invalidate drops the cached value for key
func (o *Optimizer) Invalidate(key string) {
	o.cache.Remove(key)
}

// RecordMetric appends an outcome to the series for key
func (o *Optimizer) RecordMetric(key string, latency time.Duration, success bool) {
	o.record(key, Sample{At: o.now(), Latency: latency, Success: success})
}

// Metrics summarizes the samples held for key
func (o *Optimizer) Metrics(key string) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.series[key]
	if !ok {
		return Stats{}
	}
	return r.stats()
}

// Samples returns the samples held for key, oldest first
func (o *Optimizer) Samples(key string) []Sample {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.series[key]
	if !ok {
		return nil
	}
	return r.ordered()
}

// MetricsByPrefix summarizes every series whose key starts with prefix
func (o *Optimizer) MetricsByPrefix(prefix string) map[string]Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]Stats)
	for key, r := range o.series {
		if strings.HasPrefix(key, prefix) {
			out[key] = r.stats()
		}
	}
	return out
}

// Aggregate summarizes the union of every series whose key starts with prefix
func (o *Optimizer) Aggregate(prefix string) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	var all []Sample
	for key, r := range o.series {
		if strings.HasPrefix(key, prefix) {
			all = append(all, r.ordered()...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].At.Before(all[j].At) })
	return summarize(all)
}

func (o *Optimizer) lookup(key string, ttl time.Duration) (entry, bool) {
	e, ok := o.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	if o.now().Sub(e.cachedAt) >= ttl {
		return entry{}, false
	}
	return e, true
}

func (o *Optimizer) record(key string, s Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.series[key]
	if !ok {
		r = &ring{}
		o.series[key] = r
	}
	r.add(s)
}
