package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/redis/go-redis/v9"
)

const (
	heartbeatPrefix = "sweeper:heartbeat"
	heartbeatTTL    = 60 * time.Second
)

// Heartbeat stores or updates a sweeper's heartbeat in Redis
// The heartbeat key has a TTL of 60 seconds - if a sweeper doesn't send a heartbeat
// within that time, it's considered inactive
func (r *Repository) Heartbeat(ctx context.Context, info webhook.SweeperInfo) error {
	key := fmt.Sprintf("%s:%s", heartbeatPrefix, info.SweeperID)

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	err = r.client.Set(ctx, key, data, heartbeatTTL).Err()
	if err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}

	return nil
}

// RemoveHeartbeat deletes the heartbeat of a stopping sweeper
func (r *Repository) RemoveHeartbeat(ctx context.Context, sweeperID string) error {
	key := fmt.Sprintf("%s:%s", heartbeatPrefix, sweeperID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("removing heartbeat: %w", err)
	}
	return nil
}

// ActiveSweepers retrieves all sweepers whose heartbeat has not expired
func (r *Repository) ActiveSweepers(ctx context.Context) ([]webhook.SweeperInfo, error) {
	pattern := heartbeatPrefix + ":*"
	sweepers := []webhook.SweeperInfo{}

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning sweeper keys: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				// Key expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting sweeper heartbeat: %w", err)
			}

			var heartbeat webhook.SweeperInfo
			if err := json.Unmarshal([]byte(data), &heartbeat); err != nil {
				continue
			}

			sweepers = append(sweepers, heartbeat)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(sweepers, func(i, j int) bool { return sweepers[i].SweeperID < sweepers[j].SweeperID })
	return sweepers, nil
}
