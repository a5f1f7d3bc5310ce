// Package metrics defines the Prometheus collectors for the search daemon and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// Metrics holds all collectors. Each instance owns its registry so tests and
// multiple daemons in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      prometheus.Histogram
	SearchResultsCount prometheus.Histogram
	MutationsTotal     *prometheus.CounterVec
	ReindexPostsTotal  *prometheus.CounterVec
	ReindexJobsStarted prometheus.Counter
	ReindexJobsTotal   *prometheus.CounterVec
	ReindexJobDuration prometheus.Histogram
	ReindexRunning     prometheus.Gauge
	IndexDocuments     prometheus.Gauge
	IndexState         *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumsearch_search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forumsearch_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forumsearch_search_results_count",
				Help:    "Number of matching posts per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumsearch_index_mutations_total",
				Help: "Interactive index mutations by operation and status.",
			},
			[]string{"op", "status"},
		),
		ReindexPostsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumsearch_reindex_posts_total",
				Help: "Posts processed by reindex jobs (indexed, skipped).",
			},
			[]string{"result"},
		),
		ReindexJobsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "forumsearch_reindex_jobs_started_total",
				Help: "Reindex jobs started, including the startup rebuild.",
			},
		),
		ReindexJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumsearch_reindex_jobs_total",
				Help: "Finished reindex jobs by outcome.",
			},
			[]string{"outcome"},
		),
		ReindexJobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forumsearch_reindex_job_duration_seconds",
				Help:    "Reindex job duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		ReindexRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "forumsearch_reindex_running",
				Help: "1 while a reindex job is in flight.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "forumsearch_index_documents",
				Help: "Number of documents in the index.",
			},
		),
		IndexState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forumsearch_index_state",
				Help: "1 for the current index manager state.",
			},
			[]string{"state"},
		),
	}

	m.registry.MustRegister(
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.MutationsTotal,
		m.ReindexPostsTotal,
		m.ReindexJobsStarted,
		m.ReindexJobsTotal,
		m.ReindexJobDuration,
		m.ReindexRunning,
		m.IndexDocuments,
		m.IndexState,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search query.
func (m *Metrics) ObserveSearch(elapsed time.Duration, total uint64, err error) {
	m.SearchLatency.Observe(elapsed.Seconds())
	switch {
	case err != nil:
		m.SearchQueriesTotal.WithLabelValues("error").Inc()
	case total == 0:
		m.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		m.SearchResultsCount.Observe(0)
	default:
		m.SearchQueriesTotal.WithLabelValues("hit").Inc()
		m.SearchResultsCount.Observe(float64(total))
	}
}

// ObserveMutation records one interactive create, update or delete.
func (m *Metrics) ObserveMutation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MutationsTotal.WithLabelValues(op, status).Inc()
}

// SetIndexState marks state as the only active manager state.
func (m *Metrics) SetIndexState(state string, docs uint64) {
	m.IndexState.Reset()
	m.IndexState.WithLabelValues(state).Set(1)
	m.IndexDocuments.Set(float64(docs))
}

// JobStarted implements reindex.Observer.
func (m *Metrics) JobStarted() {
	m.ReindexJobsStarted.Inc()
	m.ReindexRunning.Set(1)
}

// PostsIndexed implements reindex.Observer.
func (m *Metrics) PostsIndexed(n int) {
	m.ReindexPostsTotal.WithLabelValues("indexed").Add(float64(n))
}

// PostsSkipped implements reindex.Observer.
func (m *Metrics) PostsSkipped(n int) {
	m.ReindexPostsTotal.WithLabelValues("skipped").Add(float64(n))
}

// JobFinished implements reindex.Observer.
func (m *Metrics) JobFinished(outcome reindex.Outcome, elapsed time.Duration) {
	m.ReindexRunning.Set(0)
	m.ReindexJobsTotal.WithLabelValues(string(outcome)).Inc()
	m.ReindexJobDuration.Observe(elapsed.Seconds())
}

var _ reindex.Observer = (*Metrics)(nil)
