package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for delivery state and JSON strings for endpoints
 * Uses Sorted Sets to index deliveries by next attempt time
 */

const (
	hashPrefix     = "webhook"            // Hash naming: webhook:delivery:{id}, webhook:endpoint:{id}
	endpointsKey   = "webhook:endpoints"  // Set of every endpoint id
	scheduleKey    = "webhooks:schedule"  // ZSet of non-terminal delivery ids scored by next attempt
	deliveredKey   = "webhooks:delivered" // ZSet of delivered ids scored by completion time
	statusKey      = "webhooks:status"    // Hash of delivery counts per status
	pendingPrefix  = "webhooks:pending"   // Set naming: webhooks:pending:{endpoint_id}
	maxTxRetries   = 10
	deliveredKeep  = 24 * time.Hour
	defaultDueScan = 500
)

// Option configures the repository
type Option func(*Repository)

// WithDeliveredTTL expires delivered deliveries after ttl, zero keeps them
func WithDeliveredTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.deliveredTTL = ttl
	}
}

// WithFailedTTL expires failed deliveries after ttl, zero keeps them
func WithFailedTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.failedTTL = ttl
	}
}

type Repository struct {
	client       *redis.Client
	deliveredTTL time.Duration
	failedTTL    time.Duration
	owner        string // identifies this process on attempt claims
	now          func() time.Time
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int, opts ...Option) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return NewRepositoryFromClient(client, opts...), nil
}

// NewRepositoryFromClient wraps an existing client
func NewRepositoryFromClient(client *redis.Client, opts ...Option) *Repository {
	r := &Repository{
		client: client,
		owner:  uuid.NewString(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetEndpoint retrieves an endpoint by ID
func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	return getEndpoint(ctx, r.client, id)
}

// ListEndpoints returns the endpoints of an integration, every endpoint when empty
func (r *Repository) ListEndpoints(ctx context.Context, integrationID string) ([]webhook.Endpoint, error) {
	ids, err := r.client.SMembers(ctx, endpointsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing endpoint ids: %w", err)
	}

	out := []webhook.Endpoint{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = endpointKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting endpoints: %w", err)
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ep webhook.Endpoint
		if err := json.Unmarshal([]byte(s), &ep); err != nil {
			return nil, fmt.Errorf("unmarshaling endpoint: %w", err)
		}
		if integrationID != "" && ep.IntegrationID != integrationID {
			continue
		}
		out = append(out, ep)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveEndpoint stores an endpoint, replacing any previous version
func (r *Repository) SaveEndpoint(ctx context.Context, ep webhook.Endpoint) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshaling endpoint: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, endpointKey(ep.ID), data, 0)
		pipe.SAdd(ctx, endpointsKey, ep.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing endpoint: %w", err)
	}
	return nil
}

// UpdateEndpoint applies fn under WATCH so concurrent updates never interleave
func (r *Repository) UpdateEndpoint(ctx context.Context, id string, fn func(*webhook.Endpoint) error) (webhook.Endpoint, error) {
	key := endpointKey(id)
	var out webhook.Endpoint

	txf := func(tx *redis.Tx) error {
		ep, err := getEndpoint(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&ep); err != nil {
			return err
		}
		data, err := json.Marshal(ep)
		if err != nil {
			return fmt.Errorf("marshaling endpoint: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		out = ep
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return webhook.Endpoint{}, err
	}
	return out, nil
}

// GetDelivery retrieves a delivery by ID from its hash
func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	return getDelivery(ctx, r.client, id)
}

// DueDeliveries reads the schedule index up to now
func (r *Repository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]webhook.Delivery, error) {
	if limit <= 0 {
		limit = defaultDueScan
	}

	ids, err := r.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}

	deliveries, missing, err := r.getDeliveries(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		// expired hashes leave dangling index entries
		r.client.ZRem(ctx, scheduleKey, toAny(missing)...)
	}

	out := []webhook.Delivery{}
	for _, d := range deliveries {
		if d.Due(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

// PendingForEndpoint returns the non-terminal deliveries of one endpoint
func (r *Repository) PendingForEndpoint(ctx context.Context, endpointID string) ([]webhook.Delivery, error) {
	key := pendingKey(endpointID)
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending deliveries: %w", err)
	}

	deliveries, missing, err := r.getDeliveries(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		r.client.SRem(ctx, key, toAny(missing)...)
	}

	out := []webhook.Delivery{}
	for _, d := range deliveries {
		if !d.Status.IsFinal() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveDelivery stores a new delivery and indexes it
func (r *Repository) SaveDelivery(ctx context.Context, d webhook.Delivery) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return r.writeDelivery(ctx, pipe, d, 0)
	})
	if err != nil {
		return fmt.Errorf("storing delivery: %w", err)
	}
	return nil
}

// UpdateDelivery applies fn under WATCH and keeps the indexes in step
func (r *Repository) UpdateDelivery(ctx context.Context, id string, fn func(*webhook.Delivery) error) (webhook.Delivery, error) {
	key := deliveryKey(id)
	var out webhook.Delivery

	txf := func(tx *redis.Tx) error {
		d, err := getDelivery(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := d.Status
		if err := fn(&d); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.writeDelivery(ctx, pipe, d, prev)
		})
		out = d
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return webhook.Delivery{}, err
	}
	return out, nil
}

// QueueLengths counts non-terminal deliveries per endpoint
func (r *Repository) QueueLengths(ctx context.Context) (map[string]int64, error) {
	ids, err := r.client.SMembers(ctx, endpointsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing endpoint ids: %w", err)
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.SCard(ctx, pendingKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("counting pending deliveries: %w", err)
	}

	out := make(map[string]int64, len(ids))
	for id, cmd := range cmds {
		out[id] = cmd.Val()
	}
	return out, nil
}

// StatusCounts returns delivery counts per status. Terminal counts are
// cumulative and survive the expiry of the deliveries themselves.
func (r *Repository) StatusCounts(ctx context.Context) (map[webhook.Status]int64, error) {
	data, err := r.client.HGetAll(ctx, statusKey).Result()
	if err != nil {
		return nil, fmt.Errorf("getting status counts: %w", err)
	}

	out := make(map[webhook.Status]int64, len(webhook.Statuses))
	for _, s := range webhook.Statuses {
		out[s] = parseInt64(data[s.String()])
	}
	return out, nil
}

// DeliveredSince counts deliveries completed at or after since
func (r *Repository) DeliveredSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := r.client.ZCount(ctx, deliveredKey, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting delivered: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// watch retries txf while WATCHed keys change under it
func (r *Repository) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("updating %v: too many concurrent writers", keys)
}

// writeDelivery queues the commands that persist d and move it between indexes
func (r *Repository) writeDelivery(ctx context.Context, pipe redis.Pipeliner, d webhook.Delivery, prev webhook.Status) error {
	fields, err := encodeDelivery(d)
	if err != nil {
		return err
	}

	key := deliveryKey(d.ID)
	pipe.HSet(ctx, key, fields)

	if d.Status.IsFinal() {
		pipe.ZRem(ctx, scheduleKey, d.ID)
		if d.EndpointID != "" {
			pipe.SRem(ctx, pendingKey(d.EndpointID), d.ID)
		}
		ttl := r.failedTTL
		if d.Status == webhook.Delivered {
			ttl = r.deliveredTTL
			if prev != webhook.Delivered {
				pipe.ZAdd(ctx, deliveredKey, redis.Z{Score: float64(d.UpdatedAt.UnixMilli()), Member: d.ID})
				pipe.ZRemRangeByScore(ctx, deliveredKey, "-inf", strconv.FormatInt(r.now().Add(-deliveredKeep).UnixMilli(), 10))
			}
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	} else {
		pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: float64(d.NextRetryAt.UnixMilli()), Member: d.ID})
		if d.EndpointID != "" {
			pipe.SAdd(ctx, pendingKey(d.EndpointID), d.ID)
		}
	}

	if prev != d.Status {
		if prev.Validate() == nil {
			pipe.HIncrBy(ctx, statusKey, prev.String(), -1)
		}
		pipe.HIncrBy(ctx, statusKey, d.Status.String(), 1)
	}
	return nil
}

func (r *Repository) getDeliveries(ctx context.Context, ids []string) ([]webhook.Delivery, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, deliveryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("getting deliveries: %w", err)
	}

	var out []webhook.Delivery
	var missing []string
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			missing = append(missing, ids[i])
			continue
		}
		d, err := decodeDelivery(data)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, d)
	}
	return out, missing, nil
}

// Helper functions

// reader is satisfied by both the client and a WATCH transaction
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func getEndpoint(ctx context.Context, c reader, id string) (webhook.Endpoint, error) {
	data, err := c.Get(ctx, endpointKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return webhook.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, webhook.ErrNotFound)
	}
	if err != nil {
		return webhook.Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}

	var ep webhook.Endpoint
	if err := json.Unmarshal(data, &ep); err != nil {
		return webhook.Endpoint{}, fmt.Errorf("unmarshaling endpoint: %w", err)
	}
	return ep, nil
}

func getDelivery(ctx context.Context, c reader, id string) (webhook.Delivery, error) {
	data, err := c.HGetAll(ctx, deliveryKey(id)).Result()
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	if len(data) == 0 {
		return webhook.Delivery{}, fmt.Errorf("delivery %s: %w", id, webhook.ErrNotFound)
	}
	return decodeDelivery(data)
}

func encodeDelivery(d webhook.Delivery) (map[string]interface{}, error) {
	headersJSON, err := json.Marshal(d.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshaling headers: %w", err)
	}
	eventJSON, err := json.Marshal(d.Event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	attemptsJSON, err := json.Marshal(d.Attempts)
	if err != nil {
		return nil, fmt.Errorf("marshaling attempts: %w", err)
	}

	return map[string]interface{}{
		"id":            d.ID,
		"kind":          d.Kind.String(),
		"endpoint_id":   d.EndpointID,
		"url":           d.URL,
		"headers":       string(headersJSON),
		"event":         string(eventJSON),
		"attempts":      string(attemptsJSON),
		"status":        d.Status.String(),
		"next_attempt":  d.NextAttempt,
		"next_retry_at": unixNano(d.NextRetryAt),
		"last_error":    d.LastError,
		"created_at":    unixNano(d.CreatedAt),
		"updated_at":    unixNano(d.UpdatedAt),
	}, nil
}

func decodeDelivery(data map[string]string) (webhook.Delivery, error) {
	// Parse headers
	headers := make(map[string]string)
	if headersStr, ok := data["headers"]; ok && headersStr != "" && headersStr != "null" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	var event webhook.Event
	if err := json.Unmarshal([]byte(data["event"]), &event); err != nil {
		return webhook.Delivery{}, fmt.Errorf("unmarshaling event: %w", err)
	}

	var attempts []webhook.Attempt
	if s := data["attempts"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &attempts); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling attempts: %w", err)
		}
	}

	return webhook.Delivery{
		ID:          data["id"],
		Kind:        webhook.NewKind(data["kind"]),
		EndpointID:  data["endpoint_id"],
		URL:         data["url"],
		Headers:     headers,
		Event:       event,
		Attempts:    attempts,
		Status:      webhook.NewStatus(data["status"]),
		NextAttempt: int(parseInt64(data["next_attempt"])),
		NextRetryAt: fromUnixNano(parseInt64(data["next_retry_at"])),
		LastError:   data["last_error"],
		CreatedAt:   fromUnixNano(parseInt64(data["created_at"])),
		UpdatedAt:   fromUnixNano(parseInt64(data["updated_at"])),
	}, nil
}

func deliveryKey(id string) string {
	return fmt.Sprintf("%s:delivery:%s", hashPrefix, id)
}

func endpointKey(id string) string {
	return fmt.Sprintf("%s:endpoint:%s", hashPrefix, id)
}

func pendingKey(endpointID string) string {
	return fmt.Sprintf("%s:%s", pendingPrefix, endpointID)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func parseInt64(s string) int64 {
	var result int64
	fmt.Sscanf(s, "%d", &result)
	return result
}

func toAny(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
