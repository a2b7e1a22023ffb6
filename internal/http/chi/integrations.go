package chi

import (
	"net/http"

	"github.com/drjliddy-max/sales-tax-platform-sub001/health"
	"github.com/go-chi/chi/v5"
)

type integrationHealthResponse struct {
	health.IntegrationHealth
	Score health.Score `json:"score"`
}

// getIntegrationHealth handles GET /v1/integrations/{id}/health
func getIntegrationHealth(svc IntegrationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		h, err := svc.Health(id)
		if err != nil {
			writeError(w, err)
			return
		}
		score, err := svc.HealthScore(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, integrationHealthResponse{IntegrationHealth: h, Score: score})
	})
}

// getMaintenance handles GET /v1/integrations/{id}/maintenance
func getMaintenance(svc IntegrationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := svc.MaintenancePredictions(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	})
}

// getPerformance handles GET /v1/integrations/{id}/performance
func getPerformance(svc IntegrationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.PerformanceMetrics(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}
