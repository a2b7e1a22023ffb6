package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

// Store is the part of the delivery repository the collector reads
type Store interface {
	webhook.StatsReader
	ActiveSweepers(ctx context.Context) ([]webhook.SweeperInfo, error)
}

// StoreCollector implements the Collector interface over any delivery store
type StoreCollector struct {
	store Store
	now   func() time.Time
}

// NewStoreCollector creates a new metrics collector
func NewStoreCollector(store Store) *StoreCollector {
	return &StoreCollector{
		store: store,
		now:   time.Now,
	}
}

// Collect gathers all metrics from the store
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	queueLengths, err := c.GetQueueLengths(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting queue lengths: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	sweepers, err := c.GetActiveSweepers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active sweepers: %w", err)
	}

	return Metrics{
		QueueLengths: queueLengths,
		StatusCounts: statusCounts,
		Throughput:   throughput,
		Sweepers:     sweepers,
		Timestamp:    c.now(),
	}, nil
}

func (c *StoreCollector) GetQueueLengths(ctx context.Context) (map[string]int64, error) {
	lengths, err := c.store.QueueLengths(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading queue lengths: %w", err)
	}
	return lengths, nil
}

// GetStatusCounts returns counts keyed by status name
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := c.store.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading status counts: %w", err)
	}

	statusCounts := make(map[string]int64, len(counts))
	for status, n := range counts {
		statusCounts[status.String()] = n
	}
	return statusCounts, nil
}

// GetThroughput counts deliveries completed in the last 1, 5 and 15 minutes
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.now()
	windows := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	counts := make([]int64, len(windows))

	for i, w := range windows {
		n, err := c.store.DeliveredSince(ctx, now.Add(-w))
		if err != nil {
			return ThroughputMetrics{}, fmt.Errorf("counting deliveries in last %s: %w", w, err)
		}
		counts[i] = n
	}

	return ThroughputMetrics{
		LastMinute:         counts[0],
		LastFiveMinutes:    counts[1],
		LastFifteenMinutes: counts[2],
	}, nil
}

func (c *StoreCollector) GetActiveSweepers(ctx context.Context) ([]webhook.SweeperInfo, error) {
	sweepers, err := c.store.ActiveSweepers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sweeper heartbeats: %w", err)
	}
	return sweepers, nil
}
