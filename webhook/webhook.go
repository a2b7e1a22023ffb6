package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/payload"
)

/* Endpoint is a registered consumer of events
 * Owned by the Manager, deliveries only hold its ID
 */
type Endpoint struct {
	ID                  string           `json:"id"`
	URL                 string           `json:"url"`
	Secret              string           `json:"secret,omitempty"`
	EventTypes          []string         `json:"event_types"`
	Status              EndpointStatus   `json:"status"`
	IntegrationID       string           `json:"integration_id"`
	RateLimits          ratelimit.Limits `json:"rate_limits"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastSuccessAt       time.Time        `json:"last_success_at,omitempty"`
	LastDeliveryAt      time.Time        `json:"last_delivery_at,omitempty"`
	RateLimitRemaining  int              `json:"rate_limit_remaining"` // -1 when unknown
	RateLimitResetAt    time.Time        `json:"rate_limit_reset_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Validate checks the fields a caller must supply on registration
func (e Endpoint) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https: %s", e.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host: %s", e.URL)
	}

	if e.IntegrationID == "" {
		return fmt.Errorf("integration_id is required")
	}

	if len(e.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, et := range e.EventTypes {
		if err := payload.ValidateEventType(et); err != nil {
			return fmt.Errorf("invalid event type: %w", err)
		}
	}

	if e.RateLimits.PerMinute < 0 || e.RateLimits.PerHour < 0 || e.RateLimits.PerDay < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	return nil
}

// Subscribes reports whether the endpoint wants events of eventType
func (e Endpoint) Subscribes(eventType string) bool {
	return payload.Matches(eventType, e.EventTypes)
}

/* Event is an immutable notification published to endpoints
 * Payload is opaque and sent verbatim as the request body
 */
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	IntegrationID string          `json:"integration_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Live          bool            `json:"live"`
	Retryable     bool            `json:"retryable"`
}

// Attempt records one try of a delivery
type Attempt struct {
	Number      int           `json:"number"`
	Timestamp   time.Time     `json:"timestamp"`
	StatusCode  int           `json:"status_code,omitempty"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
	NextRetryAt time.Time     `json:"next_retry_at,omitempty"`
}

// Succeeded reports whether the attempt got a 2xx response
func (a Attempt) Succeeded() bool {
	return a.Error == "" && a.StatusCode >= 200 && a.StatusCode < 300
}

/* Delivery is the attempt sequence of one event toward one endpoint
 * Attempts are numbered 1..N and attempt N+1 exists only if attempt N failed
 */
type Delivery struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	EndpointID string            `json:"endpoint_id,omitempty"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Event      Event             `json:"event"`
	Attempts   []Attempt         `json:"attempts"`
	Status     Status            `json:"status"`
	// NextAttempt is the number the next scheduled attempt will carry
	NextAttempt int       `json:"next_attempt"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LastAttempt returns the most recent attempt, if any
func (d Delivery) LastAttempt() (Attempt, bool) {
	if len(d.Attempts) == 0 {
		return Attempt{}, false
	}
	return d.Attempts[len(d.Attempts)-1], true
}

// Due reports whether the delivery is waiting for an attempt at or before now
func (d Delivery) Due(now time.Time) bool {
	return !d.Status.IsFinal() && !d.NextRetryAt.After(now)
}
