package webhook_test

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: epoch}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type scheduled struct {
	task webhook.Task
	at   time.Time
	seq  int
}

// manualScheduler queues tasks until the test drains them
type manualScheduler struct {
	mu      sync.Mutex
	pending map[webhook.Task]scheduled
	history []scheduled
	seq     int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[webhook.Task]scheduled)}
}

func (s *manualScheduler) Schedule(task webhook.Task, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry := scheduled{task: task, at: at, seq: s.seq}
	s.pending[task] = entry
	s.history = append(s.history, entry)
}

func (s *manualScheduler) Stop() {}

// next removes the earliest pending task
func (s *manualScheduler) next() (scheduled, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return scheduled{}, false
	}
	all := make([]scheduled, 0, len(s.pending))
	for _, e := range s.pending {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.Before(all[j].at)
		}
		return all[i].seq < all[j].seq
	})
	delete(s.pending, all[0].task)
	return all[0], true
}

func (s *manualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *manualScheduler) scheduledFor(deliveryID string) []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduled
	for _, e := range s.history {
		if e.task.DeliveryID == deliveryID {
			out = append(out, e)
		}
	}
	return out
}

// scriptedSender replies with the queued responses, repeating the last one
type scriptedSender struct {
	mu        sync.Mutex
	responses []webhook.Response
	errs      []error
	requests  []webhook.Request
}

func replies(codes ...int) *scriptedSender {
	s := &scriptedSender{}
	for _, c := range codes {
		s.responses = append(s.responses, webhook.Response{StatusCode: c, Header: http.Header{}})
		s.errs = append(s.errs, nil)
	}
	return s
}

func (s *scriptedSender) then(resp webhook.Response, err error) *scriptedSender {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	s.responses = append(s.responses, resp)
	s.errs = append(s.errs, err)
	return s
}

func (s *scriptedSender) Send(ctx context.Context, req webhook.Request) (webhook.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], s.errs[i]
}

func (s *scriptedSender) Requests() []webhook.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webhook.Request(nil), s.requests...)
}

type harness struct {
	manager   *webhook.Manager
	repo      *memory.Repository
	scheduler *manualScheduler
	sender    *scriptedSender
	clock     *clock
	exhausted []webhook.Delivery
}

func newHarness(t *testing.T, sender *scriptedSender, cfg webhook.Config, opts ...webhook.Option) *harness {
	t.Helper()
	h := &harness{
		repo:      memory.NewRepository(),
		scheduler: newManualScheduler(),
		sender:    sender,
		clock:     newClock(),
	}
	var mu sync.Mutex
	opts = append([]webhook.Option{
		webhook.WithScheduler(h.scheduler),
		webhook.WithClock(h.clock.Now),
		webhook.WithOnExhausted(func(ctx context.Context, d webhook.Delivery) {
			mu.Lock()
			defer mu.Unlock()
			h.exhausted = append(h.exhausted, d)
		}),
	}, opts...)
	h.manager = webhook.NewManager(h.repo, sender, cfg, zerolog.Nop(), opts...)
	t.Cleanup(h.manager.Close)
	return h
}

// drain advances the clock to each queued task and processes it
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		e, ok := h.scheduler.next()
		if !ok {
			return
		}
		if e.at.After(h.clock.Now()) {
			h.clock.Set(e.at)
		}
		require.NoError(t, h.manager.Process(context.Background(), e.task))
	}
	t.Fatal("scheduler did not drain")
}

// step processes only the earliest queued task
func (h *harness) step(t *testing.T) scheduled {
	t.Helper()
	e, ok := h.scheduler.next()
	require.True(t, ok, "no task queued")
	if e.at.After(h.clock.Now()) {
		h.clock.Set(e.at)
	}
	require.NoError(t, h.manager.Process(context.Background(), e.task))
	return e
}

func (h *harness) register(t *testing.T, integrationID string, eventTypes ...string) webhook.Endpoint {
	t.Helper()
	ctx := context.Background()
	id, err := h.manager.RegisterEndpoint(ctx, webhook.Endpoint{
		URL:           "https://hooks.example.com/" + integrationID,
		IntegrationID: integrationID,
		EventTypes:    eventTypes,
	})
	require.NoError(t, err)
	ep, err := h.manager.Endpoint(ctx, id)
	require.NoError(t, err)
	return ep
}

func event(integrationID, eventType string) webhook.Event {
	return webhook.Event{
		Type:          eventType,
		IntegrationID: integrationID,
		Payload:       []byte(`{"order_id":"1001","total":"42.50"}`),
		Retryable:     true,
	}
}

// sharedBudget is an in-process stand-in for a cross-process limiter
type sharedBudget struct {
	mu      sync.Mutex
	left    int
	resetAt time.Time
	keys    []string
}

func (b *sharedBudget) limiter(key string, limits ratelimit.Limits) webhook.SharedLimiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return b
}

func (b *sharedBudget) CanMakeRequest(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.left > 0, nil
}

func (b *sharedBudget) RecordRequest(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left--
	return nil
}

func (b *sharedBudget) ResetAt(ctx context.Context) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetAt, nil
}
