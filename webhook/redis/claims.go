package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "webhook:claim" // String naming: webhook:claim:{delivery_id}

// releaseClaim deletes the lease only while it still carries our value
var releaseClaim = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClaimAttempt takes the delivery lease with SET NX PX, one holder per delivery
// across every process sharing the database
func (r *Repository) ClaimAttempt(ctx context.Context, deliveryID string, attempt int, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKey(deliveryID), r.claimValue(attempt), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming delivery %s: %w", deliveryID, err)
	}
	return ok, nil
}

// ReleaseAttempt drops the lease if this repository still holds it
func (r *Repository) ReleaseAttempt(ctx context.Context, deliveryID string, attempt int) error {
	err := releaseClaim.Run(ctx, r.client, []string{claimKey(deliveryID)}, r.claimValue(attempt)).Err()
	if err != nil {
		return fmt.Errorf("releasing delivery %s: %w", deliveryID, err)
	}
	return nil
}

func (r *Repository) claimValue(attempt int) string {
	return r.owner + ":" + strconv.Itoa(attempt)
}

func claimKey(deliveryID string) string {
	return claimPrefix + ":" + deliveryID
}
