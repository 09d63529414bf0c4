// Package prometheus exports service telemetry as Prometheus metrics.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.Telemetry = (*Metrics)(nil)

const namespace = "docqa"

// Metrics records service events on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	chunksIngested prometheus.Counter
	indexRecovered prometheus.Counter
	queries        *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	sessionsDelete prometheus.Counter
	blobFailures   prometheus.Counter
	llmRetries     prometheus.Counter
}

// New creates the metrics and registers them with a fresh registry,
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks merged into session indexes.",
		}),
		indexRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_recovered_total",
			Help:      "Corrupt session indexes replaced during a merge.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Questions answered, by whether the session had documents.",
		}, []string{"had_documents"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time to answer a question, including generation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		sessionsDelete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_deleted_total",
			Help:      "Session indexes deleted by reset or expiry.",
		}),
		blobFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_cleanup_failures_total",
			Help:      "Companion blob cleanups that failed and were skipped.",
		}),
		llmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Generation attempts retried after a transient failure.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chunksIngested,
		m.indexRecovered,
		m.queries,
		m.queryDuration,
		m.sessionsDelete,
		m.blobFailures,
		m.llmRetries,
	)
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChunksIngested(n int) {
	m.chunksIngested.Add(float64(n))
}

func (m *Metrics) IndexRecovered() {
	m.indexRecovered.Inc()
}

func (m *Metrics) QueryAnswered(hadDocuments bool, elapsed time.Duration) {
	label := "false"
	if hadDocuments {
		label = "true"
	}
	m.queries.WithLabelValues(label).Inc()
	m.queryDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SessionsDeleted(n int) {
	m.sessionsDelete.Add(float64(n))
}

func (m *Metrics) BlobCleanupFailed() {
	m.blobFailures.Inc()
}

func (m *Metrics) LLMRetried() {
	m.llmRetries.Inc()
}
