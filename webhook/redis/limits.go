package redis

import (
	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

// SharedLimiter returns the cross-process budget of a limiter key, stored
// beside the deliveries. Pass it to webhook.WithSharedLimits.
func (r *Repository) SharedLimiter(key string, limits ratelimit.Limits) webhook.SharedLimiter {
	return ratelimit.NewRedisWindow(r.client, "webhook:"+key, limits)
}
