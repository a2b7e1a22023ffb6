package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

const (
	// heartbeatTTL matches the expiry the redis store puts on heartbeat keys
	heartbeatTTL = 60 * time.Second
	pruneEvery   = time.Minute
)

// Option configures the repository
type Option func(*Repository)

// WithDeliveredTTL drops delivered deliveries ttl after their last update, zero keeps them
func WithDeliveredTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.deliveredTTL = ttl
	}
}

// WithFailedTTL drops failed deliveries ttl after their last update, zero keeps them
func WithFailedTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.failedTTL = ttl
	}
}

// WithClock replaces the wall clock used for expiry
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

type claim struct {
	attempt int
	until   time.Time
}

/* Repository keeps endpoints and deliveries in process memory
 * Every value crossing the boundary is copied, callers never share state
 * Non-terminal deliveries are indexed so scans never touch finished ones
 */
type Repository struct {
	mu          sync.RWMutex
	endpoints   map[string]webhook.Endpoint
	deliveries  map[string]webhook.Delivery
	active      map[string]struct{}            // non-terminal delivery ids
	pending     map[string]map[string]struct{} // endpoint id -> non-terminal delivery ids
	expires     map[string]time.Time           // terminal delivery id -> removal time
	deliveredAt map[string]time.Time
	heartbeats  map[string]webhook.SweeperInfo
	claims      map[string]claim

	deliveredTTL time.Duration
	failedTTL    time.Duration
	pruned       time.Time
	now          func() time.Time
}

// NewRepository creates an empty in-memory store
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		endpoints:   make(map[string]webhook.Endpoint),
		deliveries:  make(map[string]webhook.Delivery),
		active:      make(map[string]struct{}),
		pending:     make(map[string]map[string]struct{}),
		expires:     make(map[string]time.Time),
		deliveredAt: make(map[string]time.Time),
		heartbeats:  make(map[string]webhook.SweeperInfo),
		claims:      make(map[string]claim),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return webhook.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, webhook.ErrNotFound)
	}
	return copyEndpoint(ep), nil
}

func (r *Repository) ListEndpoints(ctx context.Context, integrationID string) ([]webhook.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []webhook.Endpoint{}
	for _, ep := range r.endpoints {
		if integrationID != "" && ep.IntegrationID != integrationID {
			continue
		}
		out = append(out, copyEndpoint(ep))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repository) SaveEndpoint(ctx context.Context, ep webhook.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (r *Repository) UpdateEndpoint(ctx context.Context, id string, fn func(*webhook.Endpoint) error) (webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return webhook.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, webhook.ErrNotFound)
	}
	ep = copyEndpoint(ep)
	if err := fn(&ep); err != nil {
		return webhook.Endpoint{}, err
	}
	r.endpoints[id] = ep
	return copyEndpoint(ep), nil
}

func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deliveries[id]
	if !ok || r.expired(id, r.now()) {
		return webhook.Delivery{}, fmt.Errorf("delivery %s: %w", id, webhook.ErrNotFound)
	}
	return copyDelivery(d), nil
}

func (r *Repository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]webhook.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []webhook.Delivery{}
	for id := range r.active {
		if d := r.deliveries[id]; d.Due(now) {
			out = append(out, copyDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRetryAt.Equal(out[j].NextRetryAt) {
			return out[i].NextRetryAt.Before(out[j].NextRetryAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) PendingForEndpoint(ctx context.Context, endpointID string) ([]webhook.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []webhook.Delivery{}
	for id := range r.pending[endpointID] {
		out = append(out, copyDelivery(r.deliveries[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) SaveDelivery(ctx context.Context, d webhook.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(copyDelivery(d))
	return nil
}

func (r *Repository) UpdateDelivery(ctx context.Context, id string, fn func(*webhook.Delivery) error) (webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deliveries[id]
	if !ok || r.expired(id, r.now()) {
		return webhook.Delivery{}, fmt.Errorf("delivery %s: %w", id, webhook.ErrNotFound)
	}
	d = copyDelivery(d)
	if err := fn(&d); err != nil {
		return webhook.Delivery{}, err
	}
	r.put(d)
	return copyDelivery(d), nil
}

func (r *Repository) QueueLengths(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64)
	for _, ep := range r.endpoints {
		out[ep.ID] = 0
	}
	for id := range r.active {
		if d := r.deliveries[id]; d.Kind == webhook.EventKind {
			out[d.EndpointID]++
		}
	}
	return out, nil
}

func (r *Repository) StatusCounts(ctx context.Context) (map[webhook.Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[webhook.Status]int64, len(webhook.Statuses))
	for _, s := range webhook.Statuses {
		out[s] = 0
	}
	now := r.now()
	for id, d := range r.deliveries {
		if !r.expired(id, now) {
			out[d.Status]++
		}
	}
	return out, nil
}

func (r *Repository) DeliveredSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, at := range r.deliveredAt {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *Repository) Heartbeat(ctx context.Context, info webhook.SweeperInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.heartbeats[info.SweeperID] = info
	return nil
}

func (r *Repository) RemoveHeartbeat(ctx context.Context, sweeperID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.heartbeats, sweeperID)
	return nil
}

func (r *Repository) ActiveSweepers(ctx context.Context) ([]webhook.SweeperInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-heartbeatTTL)
	out := []webhook.SweeperInfo{}
	for _, hb := range r.heartbeats {
		if hb.LastHeartbeat.After(cutoff) {
			out = append(out, hb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SweeperID < out[j].SweeperID })
	return out, nil
}

// ClaimAttempt leases a delivery to one attempt until ttl passes or it is released
func (r *Repository) ClaimAttempt(ctx context.Context, deliveryID string, attempt int, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if c, ok := r.claims[deliveryID]; ok && now.Before(c.until) {
		return false, nil
	}
	r.claims[deliveryID] = claim{attempt: attempt, until: now.Add(ttl)}
	return true, nil
}

// ReleaseAttempt drops the lease of attempt, a lease taken over by a later claim is left alone
func (r *Repository) ReleaseAttempt(ctx context.Context, deliveryID string, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[deliveryID]; ok && c.attempt == attempt {
		delete(r.claims, deliveryID)
	}
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return nil
}

// put stores d, maintains the indexes and drops expired terminal deliveries
func (r *Repository) put(d webhook.Delivery) {
	now := r.now()
	r.deliveries[d.ID] = d

	if d.Status.IsFinal() {
		delete(r.active, d.ID)
		if ids := r.pending[d.EndpointID]; ids != nil {
			delete(ids, d.ID)
			if len(ids) == 0 {
				delete(r.pending, d.EndpointID)
			}
		}
		if ttl := r.ttl(d.Status); ttl > 0 {
			r.expires[d.ID] = d.UpdatedAt.Add(ttl)
		}
		if d.Status == webhook.Delivered {
			if _, ok := r.deliveredAt[d.ID]; !ok {
				r.deliveredAt[d.ID] = d.UpdatedAt
			}
		}
	} else {
		r.active[d.ID] = struct{}{}
		ids := r.pending[d.EndpointID]
		if ids == nil {
			ids = make(map[string]struct{})
			r.pending[d.EndpointID] = ids
		}
		ids[d.ID] = struct{}{}
		delete(r.expires, d.ID)
	}

	r.prune(now)
}

// prune runs at most once per pruneEvery, expired reads are hidden until then
func (r *Repository) prune(now time.Time) {
	if now.Sub(r.pruned) < pruneEvery {
		return
	}
	r.pruned = now
	for id, at := range r.expires {
		if !now.Before(at) {
			delete(r.expires, id)
			delete(r.deliveries, id)
			delete(r.claims, id)
			delete(r.deliveredAt, id)
		}
	}
}

func (r *Repository) expired(id string, now time.Time) bool {
	at, ok := r.expires[id]
	return ok && !now.Before(at)
}

func (r *Repository) ttl(s webhook.Status) time.Duration {
	switch s {
	case webhook.Delivered:
		return r.deliveredTTL
	case webhook.Failed:
		return r.failedTTL
	}
	return 0
}

func copyEndpoint(ep webhook.Endpoint) webhook.Endpoint {
	ep.EventTypes = slices.Clone(ep.EventTypes)
	return ep
}

func copyDelivery(d webhook.Delivery) webhook.Delivery {
	d.Attempts = slices.Clone(d.Attempts)
	d.Headers = maps.Clone(d.Headers)
	d.Event.Payload = slices.Clone(d.Event.Payload)
	return d
}
