package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector handles metrics collection and reporting for the sync layer.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	storeOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_store_operations_total",
			Help: "Document store operations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	storeLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larder_store_operation_seconds",
			Help:    "Document store operation latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"op"},
	)

	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_catalog_refreshes_total",
			Help: "Option catalog refreshes by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	customOptions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_custom_options_total",
			Help: "Custom options persisted by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_edit_sessions_total",
			Help: "Finished edit sessions by mode and final state",
		},
		[]string{"mode", "state"},
	)

	metrics := map[string]prometheus.Collector{
		"store_ops":      storeOps,
		"store_latency":  storeLatency,
		"refreshes":      refreshes,
		"custom_options": customOptions,
		"sessions":       sessions,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}

	return &Collector{
		registry: registry,
		metrics:  metrics,
	}
}

// Registry exposes the underlying prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordStoreOp records one document store call started at start
func (c *Collector) RecordStoreOp(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	if counter, ok := c.metrics["store_ops"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(op, outcome(err)).Inc()
	}
	if histogram, ok := c.metrics["store_latency"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// RecordRefresh records a catalog refresh for kind
func (c *Collector) RecordRefresh(kind string, err error) {
	if c == nil {
		return
	}
	if counter, ok := c.metrics["refreshes"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(kind, outcome(err)).Inc()
	}
}

// RecordCustomOption records the remote persistence of a custom option
func (c *Collector) RecordCustomOption(kind string, err error) {
	if c == nil {
		return
	}
	if counter, ok := c.metrics["custom_options"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(kind, outcome(err)).Inc()
	}
}

// RecordSession records an edit session reaching a final state
func (c *Collector) RecordSession(mode, state string) {
	if c == nil {
		return
	}
	if counter, ok := c.metrics["sessions"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(mode, state).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
