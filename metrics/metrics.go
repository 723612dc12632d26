// Package metrics exposes ingestion, retrieval, and answer-composition
// counters via prometheus/client_golang, grounded in the metrics-server
// pattern from the example pack (CounterVec + Histogram registered once,
// served through promhttp.Handler()).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsIngested   *prometheus.CounterVec
	ChunksPersisted     *prometheus.CounterVec
	EmbeddingCoverage   *prometheus.HistogramVec
	IngestFailures      *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchHits          *prometheus.HistogramVec
	AnswersComposed     *prometheus.CounterVec
	AnswerLatency       *prometheus.HistogramVec
}

// New builds and registers the full set of collectors on a private
// registry, so multiple *Engine instances in the same process (e.g.
// tests) never collide on prometheus's global DefaultRegisterer.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		DocumentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "manuals_documents_ingested_total", Help: "Documents successfully ingested."},
			[]string{"doc_id"},
		),
		ChunksPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "manuals_chunks_persisted_total", Help: "Chunks persisted by content type."},
			[]string{"content_type"},
		),
		EmbeddingCoverage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "manuals_embedding_coverage_ratio", Help: "Fraction of chunks successfully embedded per ingestion run.", Buckets: prometheus.LinearBuckets(0, 0.1, 11)},
			[]string{"doc_id"},
		),
		IngestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "manuals_ingest_failures_total", Help: "Ingestion runs that returned an error."},
			[]string{"reason"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "manuals_search_duration_seconds", Help: "/search request latency.", Buckets: prometheus.DefBuckets},
			[]string{"intent"},
		),
		SearchHits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "manuals_search_hits", Help: "Hits returned per /search request.", Buckets: []float64{0, 1, 2, 4, 8, 16, 32}},
			[]string{"intent"},
		),
		AnswersComposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "manuals_answers_composed_total", Help: "/answer requests composed, by status."},
			[]string{"status", "confidence"},
		),
		AnswerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "manuals_answer_duration_seconds", Help: "/answer request latency.", Buckets: prometheus.DefBuckets},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.DocumentsIngested, m.ChunksPersisted, m.EmbeddingCoverage, m.IngestFailures,
		m.SearchLatency, m.SearchHits, m.AnswersComposed, m.AnswerLatency,
	)
	return m
}

// Handler serves the registered collectors for a scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
