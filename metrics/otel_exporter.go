package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// breaker states as gauge values
var breakerStateValues = map[string]int64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector
	integrations  IntegrationSource
	registry      *promclient.Registry

	meter               metric.Meter
	queueLengthGauge    metric.Int64ObservableGauge
	statusCountGauge    metric.Int64ObservableGauge
	throughputGauge     metric.Int64ObservableGauge
	activeSweepersGauge metric.Int64ObservableGauge
	healthScoreGauge    metric.Int64ObservableGauge
	breakerStateGauge   metric.Int64ObservableGauge
}

// ExporterOption configures an OTelExporter
type ExporterOption func(*OTelExporter)

// WithRegistry exports into reg instead of the default Prometheus registry
func WithRegistry(reg *promclient.Registry) ExporterOption {
	return func(oe *OTelExporter) {
		oe.registry = reg
	}
}

// WithIntegrations adds the integration health and breaker gauges
func WithIntegrations(src IntegrationSource) ExporterOption {
	return func(oe *OTelExporter) {
		oe.integrations = src
	}
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector, opts ...ExporterOption) (*OTelExporter, error) {
	oe := &OTelExporter{collector: collector}
	for _, opt := range opts {
		opt(oe)
	}

	var exporterOpts []prometheus.Option
	if oe.registry != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(oe.registry))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	oe.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(oe.meterProvider)

	oe.meter = oe.meterProvider.Meter(
		"sales-tax-webhooks",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.queueLengthGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.queue.length",
		metric.WithDescription("Number of non-terminal deliveries per endpoint"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeQueueLengths),
	)
	if err != nil {
		return fmt.Errorf("creating queue length gauge: %w", err)
	}

	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.status.count",
		metric.WithDescription("Number of deliveries by status"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.throughput",
		metric.WithDescription("Number of deliveries completed over time window"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	oe.activeSweepersGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.sweepers.active",
		metric.WithDescription("Number of sweepers with a live heartbeat"),
		metric.WithUnit("{sweepers}"),
		metric.WithInt64Callback(oe.observeActiveSweepers),
	)
	if err != nil {
		return fmt.Errorf("creating active sweepers gauge: %w", err)
	}

	if oe.integrations == nil {
		return nil
	}

	oe.healthScoreGauge, err = oe.meter.Int64ObservableGauge(
		"integration.health.score",
		metric.WithDescription("Integration health score from 0 to 100"),
		metric.WithInt64Callback(oe.observeHealthScores),
	)
	if err != nil {
		return fmt.Errorf("creating health score gauge: %w", err)
	}

	oe.breakerStateGauge, err = oe.meter.Int64ObservableGauge(
		"integration.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half open, 2 open"),
		metric.WithInt64Callback(oe.observeBreakerStates),
	)
	if err != nil {
		return fmt.Errorf("creating breaker state gauge: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeQueueLengths(ctx context.Context, observer metric.Int64Observer) error {
	queueLengths, err := oe.collector.GetQueueLengths(ctx)
	if err != nil {
		return err
	}

	for endpointID, length := range queueLengths {
		observer.Observe(length, metric.WithAttributes(
			attribute.String("endpoint.id", endpointID),
		))
	}

	return nil
}

func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("webhook.status", status),
		))
	}

	return nil
}

func (oe *OTelExporter) observeThroughput(ctx context.Context, observer metric.Int64Observer) error {
	throughput, err := oe.collector.GetThroughput(ctx)
	if err != nil {
		return err
	}

	observer.Observe(throughput.LastMinute, metric.WithAttributes(
		attribute.String("time.window", "1m"),
	))
	observer.Observe(throughput.LastFiveMinutes, metric.WithAttributes(
		attribute.String("time.window", "5m"),
	))
	observer.Observe(throughput.LastFifteenMinutes, metric.WithAttributes(
		attribute.String("time.window", "15m"),
	))

	return nil
}

func (oe *OTelExporter) observeActiveSweepers(ctx context.Context, observer metric.Int64Observer) error {
	sweepers, err := oe.collector.GetActiveSweepers(ctx)
	if err != nil {
		return err
	}

	observer.Observe(int64(len(sweepers)))
	return nil
}

func (oe *OTelExporter) observeHealthScores(ctx context.Context, observer metric.Int64Observer) error {
	for _, s := range oe.integrations.IntegrationStatuses() {
		observer.Observe(int64(s.HealthScore), metric.WithAttributes(
			attribute.String("integration.id", s.ID),
		))
	}
	return nil
}

func (oe *OTelExporter) observeBreakerStates(ctx context.Context, observer metric.Int64Observer) error {
	for _, s := range oe.integrations.IntegrationStatuses() {
		value, ok := breakerStateValues[s.BreakerState]
		if !ok {
			continue
		}
		observer.Observe(value, metric.WithAttributes(
			attribute.String("integration.id", s.ID),
		))
	}
	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	if oe.registry != nil {
		return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
