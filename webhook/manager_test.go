package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/mocks"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/signature"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("success - defaults applied", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		ep := h.register(t, "shopify", "order.*")

		assert.NotEmpty(t, ep.ID)
		assert.True(t, strings.HasPrefix(ep.Secret, signature.SecretPrefix))
		assert.Equal(t, webhook.EndpointActive, ep.Status)
		assert.Equal(t, ratelimit.DefaultLimits, ep.RateLimits)
		assert.Equal(t, -1, ep.RateLimitRemaining)
		assert.Equal(t, epoch, ep.CreatedAt)
		assert.Equal(t, ratelimit.DefaultLimits, h.manager.Limiters().For(ep.ID).Limits())
	})

	t.Run("success - caller secret and limits kept", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		id, err := h.manager.RegisterEndpoint(ctx, webhook.Endpoint{
			ID:            "ep-square",
			URL:           "https://hooks.example.com/square",
			IntegrationID: "square",
			EventTypes:    []string{"*"},
			Secret:        "whsec_fixed",
			RateLimits:    ratelimit.Limits{PerMinute: 5},
		})

		require.NoError(t, err)
		assert.Equal(t, "ep-square", id)
		ep, err := h.manager.Endpoint(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "whsec_fixed", ep.Secret)
		assert.Equal(t, 5, ep.RateLimits.PerMinute)
	})

	t.Run("error - invalid endpoint", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		_, err := h.manager.RegisterEndpoint(ctx, webhook.Endpoint{
			URL:           "ftp://hooks.example.com",
			IntegrationID: "shopify",
			EventTypes:    []string{"order.created"},
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating endpoint")
		var invalid *webhook.ValidationError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("error - repository failure", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		m := webhook.NewManager(repo, replies(200), webhook.DefaultConfig(), zerolog.Nop(),
			webhook.WithScheduler(newManualScheduler()))
		defer m.Close()

		repo.On("SaveEndpoint", ctx, webhook.MatchEndpoint(func(ep webhook.Endpoint) bool {
			return ep.Status == webhook.EndpointActive && ep.Secret != "" && ep.IntegrationID == "shopify"
		})).Return(errors.New("connection refused"))

		_, err := m.RegisterEndpoint(ctx, webhook.Endpoint{
			URL:           "https://hooks.example.com/shopify",
			IntegrationID: "shopify",
			EventTypes:    []string{"order.created"},
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "storing endpoint")
	})
}

func TestDeliverEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("success - retries on the fixed schedule until delivered", func(t *testing.T) {
		h := newHarness(t, replies(500, 500, 500, 200), webhook.DefaultConfig())
		ep := h.register(t, "shopify", "order.created")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		require.Len(t, ids, 1)

		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)
		require.Len(t, d.Attempts, 4)

		offsets := []time.Duration{0, time.Second, 6 * time.Second, 36 * time.Second}
		for i, a := range d.Attempts {
			assert.Equal(t, i+1, a.Number)
			assert.Equal(t, epoch.Add(offsets[i]), a.Timestamp)
		}
		assert.Equal(t, 500, d.Attempts[0].StatusCode)
		assert.Equal(t, "HTTP 500", d.Attempts[0].Error)
		assert.Equal(t, epoch.Add(time.Second), d.Attempts[0].NextRetryAt)
		assert.True(t, d.Attempts[3].Succeeded())
		assert.Empty(t, d.LastError)

		got, err := h.manager.Endpoint(ctx, ep.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.ConsecutiveFailures)
		assert.Equal(t, epoch.Add(36*time.Second), got.LastSuccessAt)
		assert.Empty(t, h.exhausted)
	})

	t.Run("success - attempts are numbered and timed in order", func(t *testing.T) {
		h := newHarness(t, replies(502), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		for i := 1; i < len(d.Attempts); i++ {
			assert.Equal(t, d.Attempts[i-1].Number+1, d.Attempts[i].Number)
			assert.False(t, d.Attempts[i].Timestamp.Before(d.Attempts[i-1].Timestamp))
		}
	})

	t.Run("success - fans out to matching active endpoints only", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		orders := h.register(t, "shopify", "order.*")
		all := h.register(t, "shopify", "*")
		h.register(t, "shopify", "refund.created")
		h.register(t, "square", "*")
		inactive := h.register(t, "shopify", "order.created")
		_, err := h.manager.DeactivateEndpoint(ctx, inactive.ID)
		require.NoError(t, err)

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		require.Len(t, ids, 2)

		targets := map[string]bool{}
		for _, id := range ids {
			d, err := h.manager.Delivery(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, webhook.EventKind, d.Kind)
			assert.Equal(t, webhook.Pending, d.Status)
			assert.Equal(t, 1, d.NextAttempt)
			targets[d.EndpointID] = true
		}
		assert.True(t, targets[orders.ID])
		assert.True(t, targets[all.ID])
		assert.Equal(t, 2, h.scheduler.Len())
	})

	t.Run("success - no subscribers yields no deliveries", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		h.register(t, "shopify", "refund.created")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))

		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
	})

	t.Run("error - invalid event", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		_, err := h.manager.DeliverEvent(ctx, webhook.Event{Type: "order.created", Payload: []byte(`{}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "integration_id is required")

		_, err = h.manager.DeliverEvent(ctx, webhook.Event{Type: "order.*", IntegrationID: "shopify", Payload: []byte(`{}`)})
		require.Error(t, err)

		_, err = h.manager.DeliverEvent(ctx, webhook.Event{Type: "order.created", IntegrationID: "shopify", Payload: []byte(`{not json`)})
		require.Error(t, err)
	})
}

func TestProcess_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("success - exhausts after max attempts and calls the hook", func(t *testing.T) {
		h := newHarness(t, replies(503), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, d.Status)
		assert.Len(t, d.Attempts, webhook.DefaultMaxAttempts)
		assert.Equal(t, "HTTP 503", d.LastError)
		assert.True(t, d.NextRetryAt.IsZero())
		assert.True(t, d.Attempts[4].NextRetryAt.IsZero())

		require.Len(t, h.exhausted, 1)
		assert.Equal(t, ids[0], h.exhausted[0].ID)
		assert.Len(t, h.sender.Requests(), webhook.DefaultMaxAttempts)

		var ats []time.Duration
		for _, e := range h.scheduler.scheduledFor(ids[0]) {
			ats = append(ats, e.at.Sub(epoch))
		}
		assert.Equal(t, []time.Duration{0, time.Second, 6 * time.Second, 36 * time.Second, 336 * time.Second}, ats)
	})

	t.Run("success - non-retryable event fails after one attempt", func(t *testing.T) {
		h := newHarness(t, replies(500), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ev := event("shopify", "order.created")
		ev.Retryable = false
		ids, err := h.manager.DeliverEvent(ctx, ev)
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, d.Status)
		assert.Len(t, d.Attempts, 1)
		assert.Len(t, h.exhausted, 1)
	})

	t.Run("success - transport errors are recorded on the attempt", func(t *testing.T) {
		sender := (&scriptedSender{}).
			then(webhook.Response{}, errors.New("dial tcp: connection refused")).
			then(webhook.Response{StatusCode: 204}, nil)
		h := newHarness(t, sender, webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)
		require.Len(t, d.Attempts, 2)
		assert.Equal(t, 0, d.Attempts[0].StatusCode)
		assert.Contains(t, d.Attempts[0].Error, "connection refused")
	})

	t.Run("success - retry-after extends the schedule on 429", func(t *testing.T) {
		throttled := webhook.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"120"}}}
		h := newHarness(t, (&scriptedSender{}).then(throttled, nil).then(webhook.Response{StatusCode: 200}, nil), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.step(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Retrying, d.Status)
		assert.Equal(t, 2, d.NextAttempt)
		assert.Equal(t, epoch.Add(120*time.Second), d.NextRetryAt)

		h.drain(t)
		d, err = h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)
	})

	t.Run("success - short retry-after keeps the schedule", func(t *testing.T) {
		throttled := webhook.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"0"}}}
		h := newHarness(t, (&scriptedSender{}).then(throttled, nil).then(webhook.Response{StatusCode: 200}, nil), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.step(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, epoch.Add(time.Second), d.NextRetryAt)
	})
}

func TestProcess_EndpointFailureThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("success - endpoint disabled and its queue failed", func(t *testing.T) {
		cfg := webhook.DefaultConfig()
		cfg.FailureThreshold = 2
		h := newHarness(t, replies(500), cfg)
		ep := h.register(t, "shopify", "*")

		first, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		second, err := h.manager.DeliverEvent(ctx, event("shopify", "order.updated"))
		require.NoError(t, err)

		h.step(t) // first attempt of the first delivery, retry queued
		h.step(t) // first attempt of the second delivery trips the threshold

		got, err := h.manager.Endpoint(ctx, ep.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.EndpointFailed, got.Status)
		assert.Equal(t, 2, got.ConsecutiveFailures)

		for _, id := range []string{first[0], second[0]} {
			d, err := h.manager.Delivery(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, webhook.Failed, d.Status)
		}
		d, err := h.manager.Delivery(ctx, first[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.ErrEndpointNotActive.Error(), d.LastError)
		assert.Len(t, h.exhausted, 2)

		// the queued retry of the first delivery is now stale
		h.drain(t)
		assert.Len(t, h.sender.Requests(), 2)

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("success - reactivation resets the counter", func(t *testing.T) {
		cfg := webhook.DefaultConfig()
		cfg.FailureThreshold = 1
		h := newHarness(t, replies(500, 200), cfg)
		ep := h.register(t, "shopify", "*")

		_, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.drain(t)

		got, err := h.manager.ReactivateEndpoint(ctx, ep.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.EndpointActive, got.Status)
		assert.Equal(t, 0, got.ConsecutiveFailures)

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		require.Len(t, ids, 1)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)
	})

	t.Run("success - deactivation fails queued deliveries", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		ep := h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)

		_, err = h.manager.DeactivateEndpoint(ctx, ep.ID)
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, d.Status)
		assert.Empty(t, d.Attempts)
		assert.Empty(t, h.sender.Requests())
	})

	t.Run("error - unknown endpoint", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		_, err := h.manager.ReactivateEndpoint(ctx, "missing")

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestProcess_RateLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("success - exhausted budget defers without a failure", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		id, err := h.manager.RegisterEndpoint(ctx, webhook.Endpoint{
			URL:           "https://hooks.example.com/shopify",
			IntegrationID: "shopify",
			EventTypes:    []string{"*"},
			RateLimits:    ratelimit.Limits{PerMinute: 1},
		})
		require.NoError(t, err)

		first, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		second, err := h.manager.DeliverEvent(ctx, event("shopify", "order.updated"))
		require.NoError(t, err)

		h.step(t)
		h.step(t)

		d, err := h.manager.Delivery(ctx, first[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)

		d, err = h.manager.Delivery(ctx, second[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, d.Status)
		assert.Empty(t, d.Attempts)
		assert.Equal(t, 1, d.NextAttempt)
		assert.Equal(t, epoch.Add(time.Minute), d.NextRetryAt)

		ep, err := h.manager.Endpoint(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, ep.ConsecutiveFailures)

		h.drain(t)
		d, err = h.manager.Delivery(ctx, second[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)
		require.Len(t, d.Attempts, 1)
		assert.Equal(t, epoch.Add(time.Minute), d.Attempts[0].Timestamp)
	})

	t.Run("success - live quota from response headers is honored", func(t *testing.T) {
		quota := webhook.Response{StatusCode: 200, Header: http.Header{
			"X-Ratelimit-Remaining": []string{"0"},
			"X-Ratelimit-Reset":     []string{"30"},
		}}
		h := newHarness(t, (&scriptedSender{}).then(quota, nil).then(webhook.Response{StatusCode: 200}, nil), webhook.DefaultConfig())
		ep := h.register(t, "shopify", "*")

		_, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.step(t)

		got, err := h.manager.Endpoint(ctx, ep.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.RateLimitRemaining)
		assert.Equal(t, epoch.Add(30*time.Second), got.RateLimitResetAt)

		second, err := h.manager.DeliverEvent(ctx, event("shopify", "order.updated"))
		require.NoError(t, err)
		h.step(t)

		d, err := h.manager.Delivery(ctx, second[0])
		require.NoError(t, err)
		assert.Empty(t, d.Attempts)
		assert.Equal(t, epoch.Add(30*time.Second), d.NextRetryAt)
	})

	t.Run("success - exhausted shared budget defers to its reset", func(t *testing.T) {
		budget := &sharedBudget{left: 1, resetAt: epoch.Add(45 * time.Second)}
		h := newHarness(t, replies(200), webhook.DefaultConfig(), webhook.WithSharedLimits(budget.limiter))
		ep := h.register(t, "shopify", "*")

		first, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		second, err := h.manager.DeliverEvent(ctx, event("shopify", "order.updated"))
		require.NoError(t, err)

		h.step(t)
		h.step(t)

		d, err := h.manager.Delivery(ctx, first[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, d.Status)

		d, err = h.manager.Delivery(ctx, second[0])
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, d.Status)
		assert.Empty(t, d.Attempts)
		assert.Equal(t, epoch.Add(45*time.Second), d.NextRetryAt)
		assert.Contains(t, budget.keys, ep.ID)
		assert.Len(t, h.sender.Requests(), 1)
	})
}

func TestProcess_Headers(t *testing.T) {
	ctx := context.Background()

	t.Run("success - signed with the endpoint secret", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		ep := h.register(t, "shopify", "*")

		ev := event("shopify", "order.created")
		ev.ID = "evt_123"
		ids, err := h.manager.DeliverEvent(ctx, ev)
		require.NoError(t, err)
		h.drain(t)

		reqs := h.sender.Requests()
		require.Len(t, reqs, 1)
		req := reqs[0]
		assert.Equal(t, ep.URL, req.URL)
		assert.Equal(t, string(ev.Payload), string(req.Body))
		assert.Equal(t, "application/json", req.Headers[webhook.HeaderContentType])
		assert.Equal(t, "SalesTax-Webhooks/1.0", req.Headers[webhook.HeaderUserAgent])
		assert.Equal(t, "order.created", req.Headers[webhook.HeaderEventType])
		assert.Equal(t, "evt_123", req.Headers[webhook.HeaderEventID])
		assert.Equal(t, ids[0], req.Headers[webhook.HeaderDeliveryID])
		assert.NotEmpty(t, req.Headers[webhook.HeaderCorrelationID])

		header := req.Headers[signature.HeaderName]
		require.NotEmpty(t, header)
		assert.NoError(t, signature.Verify(header, req.Body, signature.DefaultTolerance, epoch, ep.Secret))
		assert.ErrorIs(t, signature.Verify(header, req.Body, signature.DefaultTolerance, epoch, "whsec_other"), signature.ErrSignatureMismatch)
	})

	t.Run("success - ad-hoc delivery signed with the default secret", func(t *testing.T) {
		cfg := webhook.DefaultConfig()
		cfg.DefaultSecret = "whsec_default"
		h := newHarness(t, replies(200), cfg)

		id, err := h.manager.Deliver(ctx, "https://partner.example.com/in", []byte(`{"ok":true}`), map[string]string{
			"X-Correlation-Id": "corr-1",
			"X-Partner":        "acme",
		})
		require.NoError(t, err)
		h.drain(t)

		d, err := h.manager.Delivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DirectKind, d.Kind)
		assert.Equal(t, webhook.Delivered, d.Status)
		assert.Equal(t, webhook.DirectEventType, d.Event.Type)

		req := h.sender.Requests()[0]
		assert.Equal(t, "corr-1", req.Headers[webhook.HeaderCorrelationID])
		assert.Equal(t, "acme", req.Headers["X-Partner"])
		assert.NoError(t, signature.Verify(req.Headers[signature.HeaderName], req.Body, time.Minute, epoch, "whsec_default"))
	})

	t.Run("success - ad-hoc delivery unsigned without a default secret", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		_, err := h.manager.Deliver(ctx, "https://partner.example.com/in", []byte(`{"ok":true}`), nil)
		require.NoError(t, err)
		h.drain(t)

		req := h.sender.Requests()[0]
		_, signed := req.Headers[signature.HeaderName]
		assert.False(t, signed)
	})

	t.Run("error - ad-hoc delivery to an invalid url", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		_, err := h.manager.Deliver(ctx, "not a url", []byte(`{}`), nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating delivery")
	})
}

func TestProcess_StaleTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("success - terminal deliveries are not attempted again", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.drain(t)

		require.NoError(t, h.manager.Process(ctx, webhook.Task{DeliveryID: ids[0], Attempt: 1}))
		require.NoError(t, h.manager.Process(ctx, webhook.Task{DeliveryID: ids[0], Attempt: 2}))
		assert.Len(t, h.sender.Requests(), 1)
	})

	t.Run("success - superseded attempt numbers are ignored", func(t *testing.T) {
		h := newHarness(t, replies(500), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.step(t)

		require.NoError(t, h.manager.Process(ctx, webhook.Task{DeliveryID: ids[0], Attempt: 1}))
		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		assert.Len(t, d.Attempts, 1)
		assert.Equal(t, 2, d.NextAttempt)
	})

	t.Run("success - unknown deliveries are ignored", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		require.NoError(t, h.manager.Process(ctx, webhook.Task{DeliveryID: "missing", Attempt: 1}))
		assert.Empty(t, h.sender.Requests())
	})
}

func TestRedrive(t *testing.T) {
	ctx := context.Background()

	t.Run("success - pending delivery rescheduled now", func(t *testing.T) {
		h := newHarness(t, replies(500), webhook.DefaultConfig())
		h.register(t, "shopify", "*")

		ids, err := h.manager.DeliverEvent(ctx, event("shopify", "order.created"))
		require.NoError(t, err)
		h.step(t)

		d, err := h.manager.Delivery(ctx, ids[0])
		require.NoError(t, err)
		h.clock.Set(epoch.Add(10 * time.Second))

		assert.False(t, h.manager.InFlight(d.ID))
		assert.True(t, h.manager.Redrive(d))

		e, ok := h.scheduler.next()
		require.True(t, ok)
		assert.Equal(t, webhook.Task{DeliveryID: d.ID, Attempt: 2}, e.task)
		assert.Equal(t, epoch.Add(10*time.Second), e.at)
	})

	t.Run("success - terminal delivery not redriven", func(t *testing.T) {
		h := newHarness(t, replies(200), webhook.DefaultConfig())

		assert.False(t, h.manager.Redrive(webhook.Delivery{ID: "d-1", Status: webhook.Delivered}))
		assert.Equal(t, 0, h.scheduler.Len())
	})
}

func TestProcess_RepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("error - delivery lookup fails", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		sender := mocks.NewSender(t)
		m := webhook.NewManager(repo, sender, webhook.DefaultConfig(), zerolog.Nop(),
			webhook.WithScheduler(newManualScheduler()))
		defer m.Close()

		repo.On("ClaimAttempt", ctx, "d-1", 1, webhook.DefaultClaimTTL).Return(true, nil)
		repo.On("ReleaseAttempt", mock.Anything, "d-1", 1).Return(nil)
		repo.On("GetDelivery", ctx, "d-1").Return(webhook.Delivery{}, errors.New("i/o timeout"))

		err := m.Process(ctx, webhook.Task{DeliveryID: "d-1", Attempt: 1})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting delivery")
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("error - claim fails", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		sender := mocks.NewSender(t)
		m := webhook.NewManager(repo, sender, webhook.DefaultConfig(), zerolog.Nop(),
			webhook.WithScheduler(newManualScheduler()))
		defer m.Close()

		repo.On("ClaimAttempt", ctx, "d-1", 1, webhook.DefaultClaimTTL).Return(false, errors.New("connection refused"))

		err := m.Process(ctx, webhook.Task{DeliveryID: "d-1", Attempt: 1})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "claiming attempt")
		repo.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
	})

	t.Run("success - attempt held elsewhere is skipped", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		sender := mocks.NewSender(t)
		m := webhook.NewManager(repo, sender, webhook.DefaultConfig(), zerolog.Nop(),
			webhook.WithScheduler(newManualScheduler()))
		defer m.Close()

		repo.On("ClaimAttempt", ctx, "d-1", 1, webhook.DefaultClaimTTL).Return(false, nil)

		require.NoError(t, m.Process(ctx, webhook.Task{DeliveryID: "d-1", Attempt: 1}))
		repo.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestDeliver_RepositoryFailure(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewRepository(t)
	scheduler := newManualScheduler()
	m := webhook.NewManager(repo, mocks.NewSender(t), webhook.DefaultConfig(), zerolog.Nop(),
		webhook.WithScheduler(scheduler))
	defer m.Close()

	repo.On("SaveDelivery", ctx, webhook.MatchDelivery(func(d webhook.Delivery) bool {
		return d.Kind == webhook.DirectKind && d.Status == webhook.Pending && d.NextAttempt == 1 &&
			d.Event.Type == webhook.DirectEventType
	})).Return(errors.New("connection refused"))

	_, err := m.Deliver(ctx, "https://erp.example.com/hook", []byte(`{"ok":true}`), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing delivery")
	assert.Equal(t, 0, scheduler.Len())
}

func TestDeliverEvent_RepositoryFailure(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewRepository(t)
	scheduler := newManualScheduler()
	m := webhook.NewManager(repo, mocks.NewSender(t), webhook.DefaultConfig(), zerolog.Nop(),
		webhook.WithScheduler(scheduler))
	defer m.Close()

	repo.On("ListEndpoints", ctx, "shopify").Return([]webhook.Endpoint{
		{ID: "ep-1", URL: "https://a.example.com/hook", IntegrationID: "shopify", EventTypes: []string{"*"}, Status: webhook.EndpointActive},
		{ID: "ep-2", URL: "https://b.example.com/hook", IntegrationID: "shopify", EventTypes: []string{"*"}, Status: webhook.EndpointActive},
	}, nil)
	repo.On("SaveDelivery", ctx, webhook.MatchDelivery(func(d webhook.Delivery) bool {
		return d.EndpointID == "ep-1"
	})).Return(nil)
	repo.On("SaveDelivery", ctx, webhook.MatchDelivery(func(d webhook.Delivery) bool {
		return d.EndpointID == "ep-2"
	})).Return(errors.New("connection refused"))

	ids, err := m.DeliverEvent(ctx, event("shopify", "order.created"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing delivery for endpoint ep-2")
	require.Len(t, ids, 1)
	queued := scheduler.scheduledFor(ids[0])
	require.Len(t, queued, 1)
	assert.Equal(t, webhook.Task{DeliveryID: ids[0], Attempt: 1}, queued[0].task)
}
