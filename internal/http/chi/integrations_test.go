package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/health"
	"github.com/drjliddy-max/sales-tax-platform-sub001/integration"
	"github.com/drjliddy-max/sales-tax-platform-sub001/performance"
	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationHealth(t *testing.T) {
	t.Run("success - combines health and score", func(t *testing.T) {
		h, _, is := newTestHandler(t)
		is.On("Health", "shopify-main").Return(health.IntegrationHealth{
			IntegrationID: "shopify-main",
			Status:        health.StatusDegraded,
			ErrorRate:     4,
			Uptime:        100,
			Issues:        []string{"error rate 4.0% above 1%"},
		}, nil)
		is.On("HealthScore", "shopify-main").Return(health.Score{Score: 82, Grade: "B"}, nil)

		w := do(t, h, http.MethodGet, "/v1/integrations/shopify-main/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
		assert.Equal(t, "shopify-main", resp["integration_id"])
		score, ok := resp["score"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "B", score["grade"])
	})

	t.Run("error - unknown integration", func(t *testing.T) {
		h, _, is := newTestHandler(t)
		is.On("Health", "nope").Return(health.IntegrationHealth{}, fmt.Errorf("%w: nope", integration.ErrNotFound))

		w := do(t, h, http.MethodGet, "/v1/integrations/nope/health", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestIntegrationMaintenance(t *testing.T) {
	h, _, is := newTestHandler(t)
	is.On("MaintenancePredictions", "stripe-eu").Return(health.Forecast{
		IntegrationID: "stripe-eu",
		Risk:          health.RiskHigh,
		WindowDays:    health.RiskHigh.WindowDays(),
		Predictions: []health.Prediction{
			{Type: health.ErrorSpike, Probability: 0.7},
		},
	}, nil)

	w := do(t, h, http.MethodGet, "/v1/integrations/stripe-eu/maintenance", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp health.Forecast
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, health.RiskHigh, resp.Risk)
	require.Len(t, resp.Predictions, 1)
	assert.Equal(t, health.ErrorSpike, resp.Predictions[0].Type)
}

func TestIntegrationPerformance(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, _, is := newTestHandler(t)
		is.On("PerformanceMetrics", "xero-au").Return(integration.PerformanceReport{
			IntegrationID: "xero-au",
			Overall:       performance.Stats{Count: 10, Average: 200 * time.Millisecond},
			Operations: map[string]performance.Stats{
				integration.OpCalculateTax: {Count: 10},
			},
			Breakers: []resilience.BreakerSnapshot{{Name: "xero-au/calculate_tax", State: resilience.StateClosed}},
		}, nil)

		w := do(t, h, http.MethodGet, "/v1/integrations/xero-au/performance", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp integration.PerformanceReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 10, resp.Overall.Count)
		assert.Contains(t, resp.Operations, integration.OpCalculateTax)
		require.Len(t, resp.Breakers, 1)
		assert.Equal(t, resilience.StateClosed, resp.Breakers[0].State)
	})

	t.Run("error - unknown integration", func(t *testing.T) {
		h, _, is := newTestHandler(t)
		is.On("PerformanceMetrics", "nope").Return(integration.PerformanceReport{}, fmt.Errorf("%w: nope", integration.ErrNotFound))

		w := do(t, h, http.MethodGet, "/v1/integrations/nope/performance", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
