// Package telemetry exposes the server's own operational metrics in
// Prometheus format.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server self-observation instruments.
type Metrics struct {
	registry *prometheus.Registry

	SamplesIngested prometheus.Counter
	BatchesIngested prometheus.Counter
	BadRequests     prometheus.Counter
	HashFailures    prometheus.Counter
	StorageErrors   prometheus.Counter
	IngestSeconds   prometheus.Histogram
}

// New registers the instrument set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SamplesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostwatch_samples_ingested_total",
			Help: "Total metric samples accepted",
		}),
		BatchesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostwatch_batches_ingested_total",
			Help: "Total batches accepted",
		}),
		BadRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostwatch_bad_requests_total",
			Help: "Total malformed update requests",
		}),
		HashFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostwatch_hash_failures_total",
			Help: "Total requests rejected on signature mismatch",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostwatch_storage_errors_total",
			Help: "Total storage write failures",
		}),
		IngestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostwatch_ingest_seconds",
			Help:    "Latency of batch ingestion",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.SamplesIngested,
		m.BatchesIngested,
		m.BadRequests,
		m.HashFailures,
		m.StorageErrors,
		m.IngestSeconds,
	)
	return m
}

// Handler returns the scrape endpoint handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
