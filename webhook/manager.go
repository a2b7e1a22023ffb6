package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/payload"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/signature"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// errStale aborts an update whose task was superseded
var errStale = errors.New("stale task")

// DirectEventType is the event type of ad-hoc deliveries without one
const DirectEventType = "webhook.direct"

// Config tunes delivery behavior
type Config struct {
	ProductName    string
	ProductVersion string
	// DefaultSecret signs ad-hoc deliveries, they are unsigned when empty
	DefaultSecret    string
	Policy           RetryPolicy
	FailureThreshold int
	DefaultLimits    ratelimit.Limits
	// ClaimTTL bounds how long one worker holds an attempt, it must exceed the send timeout
	ClaimTTL time.Duration
}

// DefaultConfig returns the standard delivery settings
func DefaultConfig() Config {
	return Config{
		ProductName:      "SalesTax",
		ProductVersion:   "1.0",
		Policy:           DefaultRetryPolicy(),
		FailureThreshold: DefaultFailureThreshold,
		DefaultLimits:    ratelimit.DefaultLimits,
		ClaimTTL:         DefaultClaimTTL,
	}
}

// ExhaustedFunc is called once a delivery fails terminally
type ExhaustedFunc func(ctx context.Context, d Delivery)

// Option configures a Manager
type Option func(*Manager)

// WithScheduler replaces the timer based scheduler
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		m.scheduler = s
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithOnExhausted installs the exhaustion hook used for alerting
func WithOnExhausted(fn ExhaustedFunc) Option {
	return func(m *Manager) {
		m.onExhausted = fn
	}
}

// WithLimiters shares a limiter registry with the manager
func WithLimiters(r *ratelimit.Registry) Option {
	return func(m *Manager) {
		m.limiters = r
	}
}

// SharedLimiter is a request budget shared by every process delivering to
// the same target
type SharedLimiter interface {
	CanMakeRequest(ctx context.Context) (bool, error)
	RecordRequest(ctx context.Context) error
	ResetAt(ctx context.Context) (time.Time, error)
}

// SharedLimiterFunc returns the shared budget of a limiter key
type SharedLimiterFunc func(key string, limits ratelimit.Limits) SharedLimiter

// WithSharedLimits gates attempts on a cross-process budget as well as the local limiter
func WithSharedLimits(fn SharedLimiterFunc) Option {
	return func(m *Manager) {
		m.shared = fn
	}
}

// UseCase defines the delivery operations exposed to callers
type UseCase interface {
	RegisterEndpoint(ctx context.Context, endpoint Endpoint) (string, error)
	ReactivateEndpoint(ctx context.Context, id string) (Endpoint, error)
	DeactivateEndpoint(ctx context.Context, id string) (Endpoint, error)
	Endpoint(ctx context.Context, id string) (Endpoint, error)
	Endpoints(ctx context.Context, integrationID string) ([]Endpoint, error)
	Deliver(ctx context.Context, url string, body []byte, headers map[string]string) (string, error)
	DeliverEvent(ctx context.Context, event Event) ([]string, error)
	Delivery(ctx context.Context, id string) (Delivery, error)
}

/* Manager owns endpoints and drives every delivery
 * Uses pointer semantics as it's an API, not data
 */
type Manager struct {
	repo      Repository
	sender    Sender
	scheduler Scheduler
	limiters  *ratelimit.Registry
	shared    SharedLimiterFunc
	cfg       Config
	logger    zerolog.Logger

	onExhausted ExhaustedFunc
	now         func() time.Time

	locks sync.Map // delivery id -> *sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager with dependency injection
func NewManager(repo Repository, sender Sender, cfg Config, logger zerolog.Logger, opts ...Option) *Manager {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.DefaultLimits == (ratelimit.Limits{}) {
		cfg.DefaultLimits = ratelimit.DefaultLimits
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:   repo,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.limiters == nil {
		m.limiters = ratelimit.NewRegistry(cfg.DefaultLimits, ratelimit.WithClock(func() time.Time { return m.now() }))
	}
	if m.scheduler == nil {
		m.scheduler = NewTimerScheduler(func(t Task) {
			if err := m.Process(m.ctx, t); err != nil {
				m.logger.Error().Err(err).Str("delivery_id", t.DeliveryID).Int("attempt", t.Attempt).Msg("processing delivery")
			}
		})
	}
	return m
}

// Close stops scheduling and waits for in-flight attempts
func (m *Manager) Close() {
	m.cancel()
	m.scheduler.Stop()
}

// Limiters returns the registry holding one limiter per endpoint
func (m *Manager) Limiters() *ratelimit.Registry {
	return m.limiters
}

// RegisterEndpoint validates and stores a new active endpoint
func (m *Manager) RegisterEndpoint(ctx context.Context, ep Endpoint) (string, error) {
	if err := ep.Validate(); err != nil {
		return "", fmt.Errorf("validating endpoint: %w", &ValidationError{Err: err})
	}

	if ep.ID == "" {
		ep.ID = uuid.New().String()
	}
	if ep.Secret == "" {
		secret, err := signature.GenerateSecret(32)
		if err != nil {
			return "", fmt.Errorf("generating secret: %w", err)
		}
		ep.Secret = secret
	}
	if ep.RateLimits == (ratelimit.Limits{}) {
		ep.RateLimits = m.cfg.DefaultLimits
	}

	now := m.now()
	ep.Status = EndpointActive
	ep.ConsecutiveFailures = 0
	ep.RateLimitRemaining = -1
	ep.CreatedAt = now
	ep.UpdatedAt = now

	if err := m.repo.SaveEndpoint(ctx, ep); err != nil {
		return "", fmt.Errorf("storing endpoint: %w", err)
	}
	m.limiters.Set(ep.ID, ep.RateLimits)

	m.logger.Info().
		Str("endpoint_id", ep.ID).
		Str("integration_id", ep.IntegrationID).
		Strs("event_types", ep.EventTypes).
		Msg("endpoint registered")
	return ep.ID, nil
}

// ReactivateEndpoint returns a failed or inactive endpoint to service
func (m *Manager) ReactivateEndpoint(ctx context.Context, id string) (Endpoint, error) {
	ep, err := m.repo.UpdateEndpoint(ctx, id, func(ep *Endpoint) error {
		ep.Status = EndpointActive
		ep.ConsecutiveFailures = 0
		ep.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("reactivating endpoint: %w", err)
	}
	m.logger.Info().Str("endpoint_id", id).Msg("endpoint reactivated")
	return ep, nil
}

// DeactivateEndpoint stops deliveries to an endpoint and fails its queue
func (m *Manager) DeactivateEndpoint(ctx context.Context, id string) (Endpoint, error) {
	ep, err := m.repo.UpdateEndpoint(ctx, id, func(ep *Endpoint) error {
		ep.Status = EndpointInactive
		ep.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("deactivating endpoint: %w", err)
	}
	m.logger.Info().Str("endpoint_id", id).Msg("endpoint deactivated")

	if err := m.failPending(ctx, id, ""); err != nil {
		return ep, err
	}
	return ep, nil
}

// Endpoint returns one endpoint
func (m *Manager) Endpoint(ctx context.Context, id string) (Endpoint, error) {
	ep, err := m.repo.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}
	return ep, nil
}

// Endpoints lists the endpoints of an integration, or all when empty
func (m *Manager) Endpoints(ctx context.Context, integrationID string) ([]Endpoint, error) {
	eps, err := m.repo.ListEndpoints(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return eps, nil
}

// Delivery returns one delivery with its attempts
func (m *Manager) Delivery(ctx context.Context, id string) (Delivery, error) {
	d, err := m.repo.GetDelivery(ctx, id)
	if err != nil {
		return Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	return d, nil
}

// Deliver enqueues an ad-hoc delivery to url and attempts it immediately
func (m *Manager) Deliver(ctx context.Context, url string, body []byte, headers map[string]string) (string, error) {
	dest := Endpoint{URL: url, IntegrationID: "direct", EventTypes: []string{payload.Wildcard}}
	if err := dest.Validate(); err != nil {
		return "", fmt.Errorf("validating delivery: %w", &ValidationError{Err: err})
	}
	if err := payload.ValidateData(body); err != nil {
		return "", fmt.Errorf("validating delivery: %w", &ValidationError{Err: err})
	}

	now := m.now()
	eventType := headers[HeaderEventType]
	if eventType == "" {
		eventType = DirectEventType
	}
	eventID := headers[HeaderEventID]
	if eventID == "" {
		eventID = uuid.New().String()
	}

	d := Delivery{
		ID:      uuid.New().String(),
		Kind:    DirectKind,
		URL:     url,
		Headers: headers,
		Event: Event{
			ID:        eventID,
			Type:      eventType,
			Payload:   body,
			Timestamp: now,
			Retryable: true,
		},
		Status:      Pending,
		NextAttempt: 1,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.SaveDelivery(ctx, d); err != nil {
		return "", fmt.Errorf("storing delivery: %w", err)
	}

	m.scheduler.Schedule(Task{DeliveryID: d.ID, Attempt: 1}, now)
	return d.ID, nil
}

// DeliverEvent queues one independent delivery per active endpoint of the
// event's integration that subscribes to its type
func (m *Manager) DeliverEvent(ctx context.Context, ev Event) ([]string, error) {
	envelope := payload.Envelope{Type: ev.Type, IntegrationID: ev.IntegrationID, Data: ev.Payload}
	if err := envelope.Validate(); err != nil {
		return nil, fmt.Errorf("validating event: %w", &ValidationError{Err: err})
	}

	now := m.now()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	endpoints, err := m.repo.ListEndpoints(ctx, ev.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	ids := []string{}
	for _, ep := range endpoints {
		if ep.Status != EndpointActive || !ep.Subscribes(ev.Type) {
			continue
		}

		d := Delivery{
			ID:          uuid.New().String(),
			Kind:        EventKind,
			EndpointID:  ep.ID,
			URL:         ep.URL,
			Event:       ev,
			Status:      Pending,
			NextAttempt: 1,
			NextRetryAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.repo.SaveDelivery(ctx, d); err != nil {
			// deliveries already stored still go out
			m.schedule(ids, now)
			return ids, fmt.Errorf("storing delivery for endpoint %s: %w", ep.ID, err)
		}
		ids = append(ids, d.ID)
	}

	// queue only after every delivery is stored so one slow endpoint cannot
	// hold back the others
	m.schedule(ids, now)

	m.logger.Debug().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Int("deliveries", len(ids)).
		Msg("event published")
	return ids, nil
}

func (m *Manager) schedule(ids []string, at time.Time) {
	for _, id := range ids {
		m.scheduler.Schedule(Task{DeliveryID: id, Attempt: 1}, at)
	}
}

// Process performs the attempt identified by task. Tasks for terminal
// deliveries or superseded attempt numbers are ignored.
func (m *Manager) Process(ctx context.Context, task Task) error {
	mu := m.lock(task.DeliveryID)
	mu.Lock()
	defer mu.Unlock()

	// another process may hold the same task, the store decides who sends
	claimed, err := m.repo.ClaimAttempt(ctx, task.DeliveryID, task.Attempt, m.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("claiming attempt: %w", err)
	}
	if !claimed {
		m.logger.Debug().
			Str("delivery_id", task.DeliveryID).
			Int("attempt", task.Attempt).
			Msg("attempt claimed by another worker")
		return nil
	}
	defer func() {
		if err := m.repo.ReleaseAttempt(context.WithoutCancel(ctx), task.DeliveryID, task.Attempt); err != nil {
			m.logger.Warn().Err(err).Str("delivery_id", task.DeliveryID).Msg("releasing attempt claim")
		}
	}()

	d, err := m.repo.GetDelivery(ctx, task.DeliveryID)
	if errors.Is(err, ErrNotFound) {
		m.locks.Delete(task.DeliveryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting delivery: %w", err)
	}
	if d.Status.IsFinal() || d.NextAttempt != task.Attempt {
		if d.Status.IsFinal() {
			m.locks.Delete(task.DeliveryID)
		}
		m.logger.Debug().
			Str("delivery_id", d.ID).
			Int("attempt", task.Attempt).
			Msg("ignoring stale task")
		return nil
	}

	target, err := m.resolve(ctx, d)
	if err != nil {
		return m.fail(ctx, task, err.Error())
	}

	limiter := m.limiters.Ensure(target.limiterKey, target.limits)
	if !limiter.CanMakeRequest() {
		return m.postpone(ctx, task, limiter.ResetAt())
	}
	if m.shared != nil {
		window := m.shared(target.limiterKey, target.limits)
		ok, err := window.CanMakeRequest(ctx)
		if err != nil {
			return fmt.Errorf("checking shared rate limit: %w", err)
		}
		if !ok {
			resetAt, err := window.ResetAt(ctx)
			if err != nil {
				return fmt.Errorf("checking shared rate limit: %w", err)
			}
			return m.postpone(ctx, task, resetAt)
		}
		if err := window.RecordRequest(ctx); err != nil {
			return fmt.Errorf("recording shared request: %w", err)
		}
	}
	limiter.RecordRequest()

	body := []byte(d.Event.Payload)
	start := m.now()
	headers, err := m.headers(d, target.secret, start)
	if err != nil {
		return m.fail(ctx, task, err.Error())
	}

	resp, sendErr := m.sender.Send(ctx, Request{URL: d.URL, Body: body, Headers: headers})
	attempt := Attempt{
		Number:     task.Attempt,
		Timestamp:  start,
		StatusCode: resp.StatusCode,
		Latency:    m.now().Sub(start),
	}

	if resp.Header != nil {
		if remaining, resetAt, ok := rateLimitHeaders(resp.Header, m.now()); ok {
			limiter.Observe(remaining, resetAt)
			if d.Kind == EventKind {
				m.observeQuota(ctx, d.EndpointID, remaining, resetAt)
			}
		}
	}

	if sendErr == nil && resp.Success() {
		return m.succeed(ctx, task, d, attempt)
	}

	if sendErr != nil {
		attempt.Error = sendErr.Error()
	} else {
		attempt.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return m.retryOrFail(ctx, task, d, attempt, resp)
}

// InFlight reports whether an attempt of delivery id is running right now
func (m *Manager) InFlight(id string) bool {
	v, ok := m.locks.Load(id)
	if !ok {
		return false
	}
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return true
	}
	mu.Unlock()
	return false
}

// Redrive schedules the pending attempt of d now unless it is running
func (m *Manager) Redrive(d Delivery) bool {
	if d.Status.IsFinal() || m.InFlight(d.ID) {
		return false
	}
	m.scheduler.Schedule(Task{DeliveryID: d.ID, Attempt: d.NextAttempt}, m.now())
	return true
}

type target struct {
	secret     string
	limiterKey string
	limits     ratelimit.Limits
}

func (m *Manager) resolve(ctx context.Context, d Delivery) (target, error) {
	if d.Kind == DirectKind {
		return target{
			secret:     m.cfg.DefaultSecret,
			limiterKey: "url:" + d.URL,
			limits:     m.cfg.DefaultLimits,
		}, nil
	}

	ep, err := m.repo.GetEndpoint(ctx, d.EndpointID)
	if errors.Is(err, ErrNotFound) {
		return target{}, fmt.Errorf("endpoint %s: %w", d.EndpointID, ErrNotFound)
	}
	if err != nil {
		return target{}, fmt.Errorf("getting endpoint: %w", err)
	}
	if ep.Status != EndpointActive {
		return target{}, ErrEndpointNotActive
	}
	return target{
		secret:     ep.Secret,
		limiterKey: ep.ID,
		limits:     ep.RateLimits,
	}, nil
}

// postpone reschedules the same attempt at resetAt without recording a failure
func (m *Manager) postpone(ctx context.Context, task Task, resetAt time.Time) error {
	_, err := m.repo.UpdateDelivery(ctx, task.DeliveryID, func(d *Delivery) error {
		if d.Status.IsFinal() || d.NextAttempt != task.Attempt {
			return errStale
		}
		d.NextRetryAt = resetAt
		d.UpdatedAt = m.now()
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deferring delivery: %w", err)
	}

	m.scheduler.Schedule(task, resetAt)
	m.logger.Debug().
		Str("delivery_id", task.DeliveryID).
		Int("attempt", task.Attempt).
		Time("reset_at", resetAt).
		Msg("rate limited, attempt deferred")
	return nil
}

func (m *Manager) succeed(ctx context.Context, task Task, d Delivery, attempt Attempt) error {
	now := m.now()
	_, err := m.repo.UpdateDelivery(ctx, task.DeliveryID, func(d *Delivery) error {
		if d.Status.IsFinal() || d.NextAttempt != task.Attempt {
			return errStale
		}
		d.Attempts = append(d.Attempts, attempt)
		d.Status = Delivered
		d.NextRetryAt = time.Time{}
		d.LastError = ""
		d.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("marking delivery delivered: %w", err)
	}
	m.locks.Delete(task.DeliveryID)

	if d.Kind == EventKind {
		_, err = m.repo.UpdateEndpoint(ctx, d.EndpointID, func(ep *Endpoint) error {
			ep.ConsecutiveFailures = 0
			ep.LastSuccessAt = now
			ep.LastDeliveryAt = now
			ep.UpdatedAt = now
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("resetting endpoint failures: %w", err)
		}
	}

	m.logger.Info().
		Str("delivery_id", d.ID).
		Str("endpoint_id", d.EndpointID).
		Int("attempt", attempt.Number).
		Int("status_code", attempt.StatusCode).
		Dur("latency", attempt.Latency).
		Msg("delivery succeeded")
	return nil
}

func (m *Manager) retryOrFail(ctx context.Context, task Task, d Delivery, attempt Attempt, resp Response) error {
	now := m.now()

	endpointFailed := false
	if d.Kind == EventKind {
		var err error
		endpointFailed, err = m.countEndpointFailure(ctx, d.EndpointID, now)
		if err != nil {
			return err
		}
	}

	exhausted := m.cfg.Policy.Exhausted(task.Attempt) || !d.Event.Retryable || endpointFailed

	var next time.Time
	if !exhausted {
		delay := m.cfg.Policy.Delay(task.Attempt)
		if resp.StatusCode == 429 {
			if ra, ok := retryAfter(resp.Header, now); ok && ra > delay {
				delay = ra
			}
		}
		next = now.Add(delay)
		attempt.NextRetryAt = next
	}

	updated, err := m.repo.UpdateDelivery(ctx, task.DeliveryID, func(d *Delivery) error {
		if d.Status.IsFinal() || d.NextAttempt != task.Attempt {
			return errStale
		}
		d.Attempts = append(d.Attempts, attempt)
		d.LastError = attempt.Error
		d.UpdatedAt = now
		if exhausted {
			d.Status = Failed
			d.NextRetryAt = time.Time{}
			return nil
		}
		d.Status = Retrying
		d.NextAttempt = task.Attempt + 1
		d.NextRetryAt = next
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}

	if exhausted {
		m.locks.Delete(task.DeliveryID)
		m.exhausted(ctx, updated)
	} else {
		m.scheduler.Schedule(Task{DeliveryID: task.DeliveryID, Attempt: task.Attempt + 1}, next)
		m.logger.Warn().
			Str("delivery_id", d.ID).
			Int("attempt", attempt.Number).
			Str("error", attempt.Error).
			Time("next_retry_at", next).
			Msg("delivery attempt failed, retry scheduled")
	}

	if endpointFailed {
		if err := m.failPending(ctx, d.EndpointID, d.ID); err != nil {
			return err
		}
	}
	return nil
}

// countEndpointFailure increments the endpoint counter and reports whether
// this failure disabled the endpoint
func (m *Manager) countEndpointFailure(ctx context.Context, endpointID string, now time.Time) (bool, error) {
	disabled := false
	_, err := m.repo.UpdateEndpoint(ctx, endpointID, func(ep *Endpoint) error {
		disabled = false
		ep.ConsecutiveFailures++
		ep.LastDeliveryAt = now
		ep.UpdatedAt = now
		if ep.Status == EndpointActive && ep.ConsecutiveFailures >= m.cfg.FailureThreshold {
			ep.Status = EndpointFailed
			disabled = true
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("counting endpoint failure: %w", err)
	}
	if disabled {
		m.logger.Error().
			Str("endpoint_id", endpointID).
			Int("threshold", m.cfg.FailureThreshold).
			Msg("endpoint disabled after consecutive failures")
	}
	return disabled, nil
}

// fail terminates a delivery without recording an attempt
func (m *Manager) fail(ctx context.Context, task Task, reason string) error {
	updated, err := m.repo.UpdateDelivery(ctx, task.DeliveryID, func(d *Delivery) error {
		if d.Status.IsFinal() || d.NextAttempt != task.Attempt {
			return errStale
		}
		d.Status = Failed
		d.LastError = reason
		d.NextRetryAt = time.Time{}
		d.UpdatedAt = m.now()
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failing delivery: %w", err)
	}
	m.locks.Delete(task.DeliveryID)
	m.exhausted(ctx, updated)
	return nil
}

// failPending terminally fails the queued deliveries of a disabled endpoint
func (m *Manager) failPending(ctx context.Context, endpointID, skipID string) error {
	pending, err := m.repo.PendingForEndpoint(ctx, endpointID)
	if err != nil {
		return fmt.Errorf("listing pending deliveries: %w", err)
	}
	for _, p := range pending {
		if p.ID == skipID {
			continue
		}
		if err := m.fail(ctx, Task{DeliveryID: p.ID, Attempt: p.NextAttempt}, ErrEndpointNotActive.Error()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) exhausted(ctx context.Context, d Delivery) {
	m.logger.Error().
		Str("delivery_id", d.ID).
		Str("endpoint_id", d.EndpointID).
		Str("event_id", d.Event.ID).
		Int("attempts", len(d.Attempts)).
		Str("error", d.LastError).
		Msg("delivery failed permanently")
	if m.onExhausted != nil {
		m.onExhausted(ctx, d)
	}
}

func (m *Manager) observeQuota(ctx context.Context, endpointID string, remaining int, resetAt time.Time) {
	_, err := m.repo.UpdateEndpoint(ctx, endpointID, func(ep *Endpoint) error {
		ep.RateLimitRemaining = remaining
		ep.RateLimitResetAt = resetAt
		return nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("endpoint_id", endpointID).Msg("recording rate limit quota")
	}
}

// lock returns the mutex of a delivery, entries are dropped once it is terminal
func (m *Manager) lock(id string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Header names set on every attempt
const (
	HeaderContentType   = "Content-Type"
	HeaderUserAgent     = "User-Agent"
	HeaderEventType     = "X-Webhook-Event-Type"
	HeaderEventID       = "X-Webhook-Event-Id"
	HeaderDeliveryID    = "X-Webhook-Delivery-Id"
	HeaderTimestamp     = "X-Webhook-Timestamp"
	HeaderCorrelationID = "X-Correlation-Id"
)

func (m *Manager) headers(d Delivery, secret string, at time.Time) (map[string]string, error) {
	h := make(map[string]string, len(d.Headers)+8)
	for k, v := range d.Headers {
		h[k] = v
	}

	h[HeaderContentType] = "application/json"
	h[HeaderUserAgent] = m.cfg.ProductName + "-Webhooks/" + m.cfg.ProductVersion
	h[HeaderEventType] = d.Event.Type
	h[HeaderEventID] = d.Event.ID
	h[HeaderDeliveryID] = d.ID
	h[HeaderTimestamp] = strconv.FormatInt(at.Unix(), 10)
	if h[HeaderCorrelationID] == "" {
		h[HeaderCorrelationID] = uuid.New().String()
	}

	if secret != "" {
		sig, err := signature.Sign(at, d.Event.Payload, secret)
		if err != nil {
			return nil, fmt.Errorf("signing payload: %w", err)
		}
		h[signature.HeaderName] = sig.String()
	}
	return h, nil
}
