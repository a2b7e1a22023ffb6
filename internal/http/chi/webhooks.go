package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

/* HTTP layer DTOs for the webhook API
 * Separate from domain entities so secrets and internal counters stay out of responses
 */

type endpointRequest struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	IntegrationID string           `json:"integration_id"`
	EventTypes    []string         `json:"event_types"`
	Secret        string           `json:"secret"`
	RateLimits    ratelimit.Limits `json:"rate_limits"`
}

type endpointResponse struct {
	ID                  string           `json:"id"`
	URL                 string           `json:"url"`
	IntegrationID       string           `json:"integration_id"`
	EventTypes          []string         `json:"event_types"`
	Status              string           `json:"status"`
	RateLimits          ratelimit.Limits `json:"rate_limits"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastSuccessAt       *time.Time       `json:"last_success_at,omitempty"`
	LastDeliveryAt      *time.Time       `json:"last_delivery_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type registeredResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

type eventRequest struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	IntegrationID string          `json:"integration_id"`
	Payload       json.RawMessage `json:"payload"`
	Live          bool            `json:"live"`
	// Retryable defaults to true when omitted
	Retryable *bool `json:"retryable"`
}

type eventResponse struct {
	EventID     string   `json:"event_id,omitempty"`
	DeliveryIDs []string `json:"delivery_ids"`
}

type deliveryRequest struct {
	URL     string            `json:"url"`
	Payload json.RawMessage   `json:"payload"`
	Headers map[string]string `json:"headers"`
}

type deliveryCreatedResponse struct {
	DeliveryID string `json:"delivery_id"`
}

type attemptResponse struct {
	Number      int        `json:"number"`
	Timestamp   time.Time  `json:"timestamp"`
	StatusCode  int        `json:"status_code,omitempty"`
	LatencyMS   int64      `json:"latency_ms"`
	Error       string     `json:"error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

type deliveryResponse struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	EndpointID  string            `json:"endpoint_id,omitempty"`
	URL         string            `json:"url"`
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	Status      string            `json:"status"`
	Attempts    []attemptResponse `json:"attempts"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toEndpointResponse(ep webhook.Endpoint) endpointResponse {
	return endpointResponse{
		ID:                  ep.ID,
		URL:                 ep.URL,
		IntegrationID:       ep.IntegrationID,
		EventTypes:          ep.EventTypes,
		Status:              ep.Status.String(),
		RateLimits:          ep.RateLimits,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastSuccessAt:       optionalTime(ep.LastSuccessAt),
		LastDeliveryAt:      optionalTime(ep.LastDeliveryAt),
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

func toDeliveryResponse(d webhook.Delivery) deliveryResponse {
	attempts := make([]attemptResponse, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		attempts = append(attempts, attemptResponse{
			Number:      a.Number,
			Timestamp:   a.Timestamp,
			StatusCode:  a.StatusCode,
			LatencyMS:   a.Latency.Milliseconds(),
			Error:       a.Error,
			NextRetryAt: optionalTime(a.NextRetryAt),
		})
	}
	resp := deliveryResponse{
		ID:         d.ID,
		Kind:       d.Kind.String(),
		EndpointID: d.EndpointID,
		URL:        d.URL,
		EventID:    d.Event.ID,
		EventType:  d.Event.Type,
		Status:     d.Status.String(),
		Attempts:   attempts,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if !d.Status.IsFinal() {
		resp.NextRetryAt = optionalTime(d.NextRetryAt)
	}
	return resp
}

// postEndpoint handles POST /v1/webhooks
func postEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}

		id, err := svc.RegisterEndpoint(r.Context(), webhook.Endpoint{
			ID:            req.ID,
			URL:           req.URL,
			IntegrationID: req.IntegrationID,
			EventTypes:    req.EventTypes,
			Secret:        req.Secret,
			RateLimits:    req.RateLimits,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		// the secret is shown once, at registration
		ep, err := svc.Endpoint(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, registeredResponse{ID: id, Secret: ep.Secret})
	})
}

// listEndpoints handles GET /v1/webhooks?integration_id=
func listEndpoints(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eps, err := svc.Endpoints(r.Context(), r.URL.Query().Get("integration_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]endpointResponse, 0, len(eps))
		for _, ep := range eps {
			out = append(out, toEndpointResponse(ep))
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// getEndpoint handles GET /v1/webhooks/{id}
func getEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := svc.Endpoint(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(ep))
	})
}

func reactivateEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := svc.ReactivateEndpoint(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(ep))
	})
}

func deactivateEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := svc.DeactivateEndpoint(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(ep))
	})
}

// postEvent handles POST /v1/events
func postEvent(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}

		retryable := true
		if req.Retryable != nil {
			retryable = *req.Retryable
		}
		// the caller gets the id back either way
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		ids, err := svc.DeliverEvent(r.Context(), webhook.Event{
			ID:            req.ID,
			Type:          req.Type,
			IntegrationID: req.IntegrationID,
			Payload:       req.Payload,
			Live:          req.Live,
			Retryable:     retryable,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, eventResponse{EventID: req.ID, DeliveryIDs: ids})
	})
}

// postDelivery handles POST /v1/deliveries
func postDelivery(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}

		id, err := svc.Deliver(r.Context(), req.URL, req.Payload, req.Headers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryCreatedResponse{DeliveryID: id})
	})
}

// getDelivery handles GET /v1/deliveries/{id}
func getDelivery(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Delivery(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDeliveryResponse(d))
	})
}
