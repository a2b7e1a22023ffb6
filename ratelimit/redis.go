package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/* RedisWindow is the shared variant of Limiter
 * The request log lives in a sorted set scored by unix milliseconds,
 * so several processes delivering to the same endpoint share one budget
 */

const keyPrefix = "ratelimit"

type RedisWindow struct {
	client *redis.Client
	key    string
	limits Limits
	now    func() time.Time
}

// NewRedisWindow creates a shared limiter stored under ratelimit:{name}
func NewRedisWindow(client *redis.Client, name string, limits Limits) *RedisWindow {
	return &RedisWindow{
		client: client,
		key:    fmt.Sprintf("%s:%s", keyPrefix, name),
		limits: limits,
		now:    time.Now,
	}
}

// CanMakeRequest reports whether all tiers are below their caps
func (w *RedisWindow) CanMakeRequest(ctx context.Context) (bool, error) {
	minute, hour, day, err := w.counts(ctx)
	if err != nil {
		return false, err
	}
	return below(minute, w.limits.PerMinute) &&
		below(hour, w.limits.PerHour) &&
		below(day, w.limits.PerDay), nil
}

// RecordRequest appends a request at the current time
func (w *RedisWindow) RecordRequest(ctx context.Context) error {
	now := w.now()
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, w.key, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: uuid.NewString(),
		})
		pipe.Expire(ctx, w.key, Day)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	return nil
}

// Remaining returns the number of requests each tier still admits
func (w *RedisWindow) Remaining(ctx context.Context) (Remaining, error) {
	minute, hour, day, err := w.counts(ctx)
	if err != nil {
		return Remaining{}, err
	}
	return Remaining{
		Minute: remaining(minute, w.limits.PerMinute),
		Hour:   remaining(hour, w.limits.PerHour),
		Day:    remaining(day, w.limits.PerDay),
	}, nil
}

// ResetAt returns the earliest time at which CanMakeRequest may become true.
// It returns now when a request is currently admitted.
func (w *RedisWindow) ResetAt(ctx context.Context) (time.Time, error) {
	now := w.now()
	at := now

	for _, tier := range []struct {
		cap    int
		window time.Duration
	}{
		{w.limits.PerMinute, Minute},
		{w.limits.PerHour, Hour},
		{w.limits.PerDay, Day},
	} {
		if tier.cap <= 0 {
			continue
		}
		from := exclusive(now.Add(-tier.window))
		count, err := w.client.ZCount(ctx, w.key, from, "+inf").Result()
		if err != nil {
			return time.Time{}, fmt.Errorf("counting requests: %w", err)
		}
		if int(count) < tier.cap {
			continue
		}

		oldest, err := w.client.ZRangeByScoreWithScores(ctx, w.key, &redis.ZRangeBy{
			Min:    from,
			Max:    "+inf",
			Offset: count - int64(tier.cap),
			Count:  1,
		}).Result()
		if err != nil {
			return time.Time{}, fmt.Errorf("reading request log: %w", err)
		}
		if len(oldest) == 0 {
			continue
		}
		free := time.UnixMilli(int64(oldest[0].Score)).Add(tier.window)
		if free.After(at) {
			at = free
		}
	}
	return at, nil
}

// counts prunes the set to the day window and counts each tier atomically
func (w *RedisWindow) counts(ctx context.Context) (minute, hour, day int, err error) {
	now := w.now()
	var minuteCmd, hourCmd, dayCmd *redis.IntCmd

	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, w.key, "-inf", strconv.FormatInt(now.Add(-Day).UnixMilli(), 10))
		minuteCmd = pipe.ZCount(ctx, w.key, exclusive(now.Add(-Minute)), "+inf")
		hourCmd = pipe.ZCount(ctx, w.key, exclusive(now.Add(-Hour)), "+inf")
		dayCmd = pipe.ZCard(ctx, w.key)
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("counting requests: %w", err)
	}

	return int(minuteCmd.Val()), int(hourCmd.Val()), int(dayCmd.Val()), nil
}

func exclusive(t time.Time) string {
	return "(" + strconv.FormatInt(t.UnixMilli(), 10)
}
