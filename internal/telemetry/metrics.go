// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing for runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dje_worker"

// Record outcomes, used as the outcome label.
const (
	OutcomeExtracted = "extracted"
	OutcomeRejected  = "rejected"
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Metrics holds the worker's Prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	pagesFetched prometheus.Counter
	pagesSkipped prometheus.Counter
	spansDropped prometheus.Counter
	records      *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// NewMetrics registers the worker collectors, plus the Go and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Gazette pages fetched.",
		}),
		pagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_skipped_total",
			Help:      "Gazette pages skipped after a failed fetch.",
		}),
		spansDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_dropped_total",
			Help:      "Record spans dropped because they could not be completed.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Case records by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final state.",
		}, []string{"state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
	}

	m.registry.MustRegister(
		m.pagesFetched,
		m.pagesSkipped,
		m.spansDropped,
		m.records,
		m.runs,
		m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PageFetched counts a fetched page.
func (m *Metrics) PageFetched() {
	m.pagesFetched.Inc()
}

// PageSkipped counts a page skipped after a failed fetch.
func (m *Metrics) PageSkipped() {
	m.pagesSkipped.Inc()
}

// SpanDropped counts an incomplete span that was discarded.
func (m *Metrics) SpanDropped() {
	m.spansDropped.Inc()
}

// Record counts one record outcome.
func (m *Metrics) Record(outcome string) {
	m.records.WithLabelValues(outcome).Inc()
}

// RunFinished records the final state and duration of a run.
func (m *Metrics) RunFinished(state string, d time.Duration) {
	m.runs.WithLabelValues(state).Inc()
	m.runDuration.Observe(d.Seconds())
}
