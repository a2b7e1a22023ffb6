package performance_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/performance"
	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newOptimizer(c *clock) *performance.Optimizer {
	return performance.NewOptimizer(performance.DefaultConfig(), performance.WithClock(c.Now))
}

func TestOptimizer_WithCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("serves cached value until ttl elapses", func(t *testing.T) {
		c := newClock()
		o := newOptimizer(c)
		calls := 0
		fetch := func(context.Context) (any, error) {
			calls++
			return calls, nil
		}

		v, err := o.WithCaching(ctx, "rates:CA", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		c.Advance(time.Minute - time.Nanosecond)
		v, err = o.WithCaching(ctx, "rates:CA", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		c.Advance(time.Nanosecond)
		v, err = o.WithCaching(ctx, "rates:CA", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		st := o.Metrics("rates:CA")
		assert.Equal(t, 3, st.Count)
		assert.Equal(t, 1, st.CacheHits)
		assert.Equal(t, 2, st.CacheMisses)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		o := newOptimizer(newClock())
		calls := 0
		fetch := func(context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("upstream down")
			}
			return "fresh", nil
		}

		_, err := o.WithCaching(ctx, "k", time.Hour, fetch)
		require.Error(t, err)

		v, err := o.WithCaching(ctx, "k", time.Hour, fetch)
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
		assert.Equal(t, 1, o.Metrics("k").Errors)
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		o := newOptimizer(newClock())
		var calls int32
		release := make(chan struct{})
		fetch := func(context.Context) (any, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return "v", nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := o.WithCaching(ctx, "shared", time.Hour, fetch)
				assert.NoError(t, err)
				assert.Equal(t, "v", v)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})

	t.Run("invalidate forces a fetch", func(t *testing.T) {
		o := newOptimizer(newClock())
		calls := 0
		fetch := func(context.Context) (any, error) {
			calls++
			return calls, nil
		}
		_, _ = o.WithCaching(ctx, "k", time.Hour, fetch)
		o.Invalidate("k")
		v, _ := o.WithCaching(ctx, "k", time.Hour, fetch)
		assert.Equal(t, 2, v)
	})
}

func TestCached(t *testing.T) {
	o := newOptimizer(newClock())

	rate, err := performance.Cached(context.Background(), o, "rate", time.Minute, func(context.Context) (float64, error) {
		return 0.0825, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0825, rate)

	_, err = performance.Cached(context.Background(), o, "rate", time.Minute, func(context.Context) (string, error) {
		return "never called", nil
	})
	assert.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the result when the operation wins", func(t *testing.T) {
		v, err := performance.WithTimeout(ctx, time.Second, func(context.Context) (string, error) {
			return "done", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("returns ErrTimeout when the timer wins", func(t *testing.T) {
		finished := make(chan struct{})
		_, err := performance.WithTimeout(ctx, 10*time.Millisecond, func(context.Context) (string, error) {
			defer close(finished)
			time.Sleep(50 * time.Millisecond)
			return "late", nil
		})

		assert.ErrorIs(t, err, performance.ErrTimeout)
		assert.ErrorIs(t, err, resilience.ErrTimeout)
		assert.True(t, resilience.IsRetryable(err))

		// the operation still runs to completion
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("operation was abandoned")
		}
	})

	t.Run("propagates operation errors", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := performance.WithTimeout(ctx, time.Second, func(context.Context) (int, error) {
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestOptimizer_Metrics(t *testing.T) {
	t.Run("derives avg min max count", func(t *testing.T) {
		o := newOptimizer(newClock())
		o.RecordMetric("op", 100*time.Millisecond, true)
		o.RecordMetric("op", 300*time.Millisecond, false)
		o.RecordMetric("op", 200*time.Millisecond, true)

		st := o.Metrics("op")
		assert.Equal(t, 3, st.Count)
		assert.Equal(t, 200*time.Millisecond, st.Average)
		assert.Equal(t, 100*time.Millisecond, st.Min)
		assert.Equal(t, 300*time.Millisecond, st.Max)
		assert.Equal(t, 1, st.Errors)
		assert.InDelta(t, 33.33, st.ErrorRate, 0.01)
	})

	t.Run("keeps at most 100 samples", func(t *testing.T) {
		o := newOptimizer(newClock())
		for i := 1; i <= 150; i++ {
			o.RecordMetric("op", time.Duration(i)*time.Millisecond, true)
		}

		st := o.Metrics("op")
		assert.Equal(t, performance.MaxSamples, st.Count)
		assert.Equal(t, 51*time.Millisecond, st.Min)
		assert.Equal(t, 150*time.Millisecond, st.Max)

		samples := o.Samples("op")
		require.Len(t, samples, performance.MaxSamples)
		assert.Equal(t, 51*time.Millisecond, samples[0].Latency)
	})

	t.Run("unknown key is empty", func(t *testing.T) {
		o := newOptimizer(newClock())
		assert.Equal(t, performance.Stats{}, o.Metrics("missing"))
	})

	t.Run("prefix aggregation", func(t *testing.T) {
		o := newOptimizer(newClock())
		o.RecordMetric("int-1:syncProducts", 100*time.Millisecond, true)
		o.RecordMetric("int-1:calculateTax", 300*time.Millisecond, false)
		o.RecordMetric("int-2:syncProducts", time.Second, true)

		assert.Len(t, o.MetricsByPrefix("int-1:"), 2)
		agg := o.Aggregate("int-1:")
		assert.Equal(t, 2, agg.Count)
		assert.Equal(t, 200*time.Millisecond, agg.Average)
		assert.Equal(t, 50.0, agg.ErrorRate)
	})
}

func TestIntelligentCache(t *testing.T) {
	ctx := context.Background()

	t.Run("tracks popularity and hit rate", func(t *testing.T) {
		c := performance.NewIntelligentCache(newOptimizer(newClock()), 10, zerolog.Nop())
		fetch := func(context.Context) (any, error) { return "v", nil }

		for i := 0; i < 4; i++ {
			_, err := c.Get(ctx, "products", "sku-1", time.Hour, fetch)
			require.NoError(t, err)
		}
		_, _ = c.Get(ctx, "products", "sku-2", time.Hour, fetch)

		pop := c.Popular("products")
		require.Len(t, pop, 2)
		assert.Equal(t, "sku-1", pop[0].Key)
		assert.Equal(t, 4, pop[0].Requests)
		assert.Equal(t, 0.75, pop[0].HitRate)
	})

	t.Run("warms popular keys below the hit rate threshold", func(t *testing.T) {
		clk := newClock()
		c := performance.NewIntelligentCache(newOptimizer(clk), 1, zerolog.Nop())
		var hotCalls, coldCalls int
		hot := func(context.Context) (any, error) { hotCalls++; return "hot", nil }
		cold := func(context.Context) (any, error) { coldCalls++; return "cold", nil }

		// every request to the hot key misses because the ttl is shorter than the gap
		for i := 0; i < 3; i++ {
			_, _ = c.Get(ctx, "rates", "CA", time.Second, hot)
			clk.Advance(2 * time.Second)
		}
		_, _ = c.Get(ctx, "rates", "NV", time.Second, cold)

		warmed, err := c.WarmPopularCache(ctx, "rates")
		require.NoError(t, err)
		assert.Equal(t, 1, warmed)
		assert.Equal(t, 4, hotCalls)
		assert.Equal(t, 1, coldCalls)

		v, err := c.Get(ctx, "rates", "CA", time.Second, hot)
		require.NoError(t, err)
		assert.Equal(t, "hot", v)
		assert.Equal(t, 4, hotCalls)
	})

	t.Run("warm pass uses the refresh loader", func(t *testing.T) {
		clk := newClock()
		c := performance.NewIntelligentCache(newOptimizer(clk), 10, zerolog.Nop())
		var fetches, refreshes int
		fetch := func(context.Context) (any, error) { fetches++; return "v", nil }
		refresh := func(context.Context) (any, error) { refreshes++; return "fresh", nil }

		_, err := c.GetWithRefresh(ctx, "rates", "CA", time.Second, fetch, refresh)
		require.NoError(t, err)
		assert.True(t, c.Cached("rates", "CA", time.Second))
		clk.Advance(2 * time.Second)
		assert.False(t, c.Cached("rates", "CA", time.Second))

		warmed, err := c.WarmPopularCache(ctx, "rates")
		require.NoError(t, err)
		assert.Equal(t, 1, warmed)
		assert.Equal(t, 1, fetches)
		assert.Equal(t, 1, refreshes)
		assert.True(t, c.Cached("rates", "CA", time.Second))
	})

	t.Run("skips keys that already hit often", func(t *testing.T) {
		c := performance.NewIntelligentCache(newOptimizer(newClock()), 10, zerolog.Nop())
		calls := 0
		fetch := func(context.Context) (any, error) { calls++; return "v", nil }
		for i := 0; i < 10; i++ {
			_, _ = c.Get(ctx, "s", "k", time.Hour, fetch)
		}

		warmed, err := c.WarmPopularCache(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, 0, warmed)
		assert.Equal(t, 1, calls)
	})

	t.Run("empty scope is a no-op", func(t *testing.T) {
		c := performance.NewIntelligentCache(newOptimizer(newClock()), 10, zerolog.Nop())
		warmed, err := c.WarmPopularCache(ctx, "nothing")
		require.NoError(t, err)
		assert.Zero(t, warmed)
	})
}
