package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/health"
	"github.com/drjliddy-max/sales-tax-platform-sub001/integration"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"
)

// RequestTimeout bounds every API request
const RequestTimeout = 30 * time.Second

// IntegrationService is the reporting side of integration.Registry
type IntegrationService interface {
	Health(id string) (health.IntegrationHealth, error)
	HealthScore(id string) (health.Score, error)
	MaintenancePredictions(id string) (health.Forecast, error)
	PerformanceMetrics(id string) (integration.PerformanceReport, error)
}

// Handlers sets up the API routes. metricsHandler may be nil
func Handlers(ctx context.Context, webhooks webhook.UseCase, integrations IntegrationService, metricsHandler http.Handler, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", postEndpoint(webhooks).ServeHTTP)
			r.Get("/", listEndpoints(webhooks).ServeHTTP)
			r.Get("/{id}", getEndpoint(webhooks).ServeHTTP)
			r.Post("/{id}/reactivate", reactivateEndpoint(webhooks).ServeHTTP)
			r.Post("/{id}/deactivate", deactivateEndpoint(webhooks).ServeHTTP)
		})

		r.Post("/events", postEvent(webhooks).ServeHTTP)

		r.Post("/deliveries", postDelivery(webhooks).ServeHTTP)
		r.Get("/deliveries/{id}", getDelivery(webhooks).ServeHTTP)

		r.Route("/integrations/{id}", func(r chi.Router) {
			r.Get("/health", getIntegrationHealth(integrations).ServeHTTP)
			r.Get("/maintenance", getMaintenance(integrations).ServeHTTP)
			r.Get("/performance", getPerformance(integrations).ServeHTTP)
		})
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	var invalid *webhook.ValidationError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, webhook.ErrNotFound), errors.Is(err, integration.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
