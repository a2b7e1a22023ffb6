package performance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultWarmTopN is how many popular keys a warm pass considers
	DefaultWarmTopN = 10
	// WarmHitRateThreshold is the hit rate below which a popular key is re-primed
	WarmHitRateThreshold = 0.8
)

type keyStats struct {
	hits   int
	misses int
	fetch  func(context.Context) (any, error)
}

func (k *keyStats) requests() int {
	return k.hits + k.misses
}

func (k *keyStats) hitRate() float64 {
	if k.requests() == 0 {
		return 0
	}
	return float64(k.hits) / float64(k.requests())
}

// KeyPopularity is a read-only view of one tracked key
type KeyPopularity struct {
	Key      string  `json:"key"`
	Requests int     `json:"requests"`
	HitRate  float64 `json:"hit_rate"`
}

/* IntelligentCache tracks hit/miss history and popularity per scope on top of
 * an Optimizer and can re-prime the most requested keys that keep missing.
 */
type IntelligentCache struct {
	optimizer *Optimizer
	topN      int
	logger    zerolog.Logger

	mu     sync.Mutex
	scopes map[string]map[string]*keyStats
}

// NewIntelligentCache creates a popularity tracking cache over o
func NewIntelligentCache(o *Optimizer, topN int, logger zerolog.Logger) *IntelligentCache {
	if topN <= 0 {
		topN = DefaultWarmTopN
	}
	return &IntelligentCache{
		optimizer: o,
		topN:      topN,
		logger:    logger,
		scopes:    make(map[string]map[string]*keyStats),
	}
}

// Get serves key within scope through the optimizer cache and updates its popularity
func (c *IntelligentCache) Get(ctx context.Context, scope, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	return c.GetWithRefresh(ctx, scope, key, ttl, fetch, fetch)
}

/* GetWithRefresh is Get with a separate loader for warm passes
 * fetch runs on a miss inside whatever guards the caller already holds,
 * refresh runs on its own from WarmPopularCache and must apply them itself
 */
func (c *IntelligentCache) GetWithRefresh(ctx context.Context, scope, key string, ttl time.Duration, fetch, refresh func(context.Context) (any, error)) (any, error) {
	cacheKey := scopedKey(scope, key)
	_, hit := c.optimizer.lookup(cacheKey, ttl)
	c.track(scope, key, refresh, hit)
	return c.optimizer.WithCaching(ctx, cacheKey, ttl, fetch)
}

// Cached reports whether key within scope holds a value younger than ttl
func (c *IntelligentCache) Cached(scope, key string, ttl time.Duration) bool {
	_, ok := c.optimizer.lookup(scopedKey(scope, key), ttl)
	return ok
}

// Popular returns the tracked keys of scope, most requested first
func (c *IntelligentCache) Popular(scope string) []KeyPopularity {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.scopes[scope]
	out := make([]KeyPopularity, 0, len(keys))
	for key, st := range keys {
		out = append(out, KeyPopularity{Key: key, Requests: st.requests(), HitRate: st.hitRate()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// WarmPopularCache re-fetches the top N keys of scope whose hit rate is below
// 80% and stores the fresh values. It returns how many keys were primed.
func (c *IntelligentCache) WarmPopularCache(ctx context.Context, scope string) (int, error) {
	type candidate struct {
		key   string
		fetch func(context.Context) (any, error)
	}

	var candidates []candidate
	popular := c.Popular(scope)
	if len(popular) > c.topN {
		popular = popular[:c.topN]
	}

	c.mu.Lock()
	for _, p := range popular {
		if p.HitRate >= WarmHitRateThreshold {
			continue
		}
		st := c.scopes[scope][p.Key]
		candidates = append(candidates, candidate{key: p.Key, fetch: st.fetch})
	}
	c.mu.Unlock()

	var errs []error
	warmed := 0
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		value, err := cand.fetch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("warming %s: %w", cand.key, err))
			continue
		}
		c.optimizer.cache.Add(scopedKey(scope, cand.key), entry{value: value, cachedAt: c.optimizer.now()})
		warmed++
	}

	c.logger.Debug().
		Str("scope", scope).
		Int("warmed", warmed).
		Int("candidates", len(candidates)).
		Msg("cache warm pass finished")

	return warmed, errors.Join(errs...)
}

func (c *IntelligentCache) track(scope, key string, fetch func(context.Context) (any, error), hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.scopes[scope]
	if !ok {
		keys = make(map[string]*keyStats)
		c.scopes[scope] = keys
	}
	st, ok := keys[key]
	if !ok {
		st = &keyStats{}
		keys[key] = st
	}
	if hit {
		st.hits++
	} else {
		st.misses++
	}
	st.fetch = fetch
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}
