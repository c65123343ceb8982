package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ServiceName labels logs, traces and pushed metrics.
const ServiceName = "cp-digest-bot"

// Metrics is the Prometheus-backed recorder shared by the sync, report and
// scheduler modules.
type Metrics struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	fetches           *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	writeBacks        *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpdigest",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "service", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cpdigest",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"operation", "service"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpdigest",
			Name:      "source_fetches_total",
			Help:      "Per-member source fetches by outcome.",
		}, []string{"source", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpdigest",
			Name:      "source_submissions_total",
			Help:      "New submissions classified per source.",
		}, []string{"source"}),
		writeBacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpdigest",
			Name:      "watermark_writebacks_total",
			Help:      "Watermark write-back attempts by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpdigest",
			Name:      "report_messages_total",
			Help:      "Report messages handed to the delivery sink by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.fetches,
		m.submissions,
		m.writeBacks,
		m.deliveries,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordOperationAttempt(ctx context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "attempt").Inc()
}

func (m *Metrics) RecordOperationSuccess(ctx context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "success").Inc()
}

func (m *Metrics) RecordOperationFailure(ctx context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "failure").Inc()
}

func (m *Metrics) RecordOperationDuration(ctx context.Context, operation, service string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation, service).Observe(d.Seconds())
}

func (m *Metrics) RecordFetch(ctx context.Context, source, outcome string) {
	m.fetches.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordSubmissions(ctx context.Context, source string, n int) {
	if n > 0 {
		m.submissions.WithLabelValues(source).Add(float64(n))
	}
}

func (m *Metrics) RecordWriteBack(ctx context.Context, outcome string) {
	m.writeBacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDelivery(ctx context.Context, outcome string) {
	m.deliveries.WithLabelValues(outcome).Inc()
}

// Push sends the registry to a Prometheus Pushgateway. Used by one-shot runs
// that exit before a scrape could happen.
func (m *Metrics) Push(ctx context.Context, gatewayURL string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, ServiceName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// NoopMetrics discards everything. Used in tests.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) RecordOperationAttempt(context.Context, string, string)                 {}
func (NoopMetrics) RecordOperationSuccess(context.Context, string, string)                 {}
func (NoopMetrics) RecordOperationFailure(context.Context, string, string)                 {}
func (NoopMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (NoopMetrics) RecordFetch(context.Context, string, string)                            {}
func (NoopMetrics) RecordSubmissions(context.Context, string, int)                         {}
func (NoopMetrics) RecordWriteBack(context.Context, string)                                {}
func (NoopMetrics) RecordDelivery(context.Context, string)                                 {}
