package metrics

import (
	"context"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

// Metrics represents the current state of the delivery system.
type Metrics struct {
	// QueueLengths maps endpoint id to the number of non-terminal deliveries
	QueueLengths map[string]int64 `json:"queue_lengths"`

	// StatusCounts maps status name to count of deliveries in that status
	StatusCounts map[string]int64 `json:"status_counts"`

	// Throughput represents deliveries completed per time window
	Throughput ThroughputMetrics `json:"throughput"`

	Sweepers []webhook.SweeperInfo `json:"sweepers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents deliveries completed over different time windows.
type ThroughputMetrics struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// Collector defines the interface for collecting metrics from the delivery system.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetQueueLengths returns the number of pending deliveries per endpoint
	GetQueueLengths(ctx context.Context) (map[string]int64, error)

	// GetStatusCounts returns the count of deliveries by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetThroughput returns deliveries completed over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)

	// GetActiveSweepers returns the sweepers with a live heartbeat
	GetActiveSweepers(ctx context.Context) ([]webhook.SweeperInfo, error)
}

// IntegrationStatus is the per-integration state exported as gauges
type IntegrationStatus struct {
	ID           string
	HealthScore  int
	BreakerState string
}

// IntegrationSource lists the integrations to report on
type IntegrationSource interface {
	IntegrationStatuses() []IntegrationStatus
}

// IntegrationSourceFunc adapts a function to IntegrationSource
type IntegrationSourceFunc func() []IntegrationStatus

func (f IntegrationSourceFunc) IntegrationStatuses() []IntegrationStatus {
	return f()
}
