// Package metrics provides Prometheus instrumentation for kmeansd.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for kmeansd.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	TrainingIterationsTotal *prometheus.CounterVec
	TrainingJobsTotal       *prometheus.CounterVec
	ActiveTrainingJobs      prometheus.Gauge
	ConvergenceDelta        *prometheus.GaugeVec
	WithinMSE               *prometheus.GaugeVec
	PhaseDuration           *prometheus.HistogramVec
	EmptyClusterRescues     *prometheus.CounterVec
	RowsIngested            *prometheus.CounterVec
	CentroidsExported       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all kmeansd metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_requests_total",
				Help: "Total HTTP requests by endpoint and status code.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmeansd_request_duration_seconds",
				Help:    "HTTP request latency distribution.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmeansd_active_requests",
				Help: "Number of requests currently being processed.",
			},
		),
		TrainingIterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_training_iterations_total",
				Help: "Total Lloyd's algorithm iterations run, by job.",
			},
			[]string{"job"},
		),
		TrainingJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_training_jobs_total",
				Help: "Total training jobs completed, by terminal status.",
			},
			[]string{"status"},
		),
		ActiveTrainingJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmeansd_active_training_jobs",
				Help: "Number of training jobs currently running.",
			},
		),
		ConvergenceDelta: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmeansd_convergence_delta",
				Help: "Most recent per-iteration centroid movement delta, by job.",
			},
			[]string{"job"},
		),
		WithinMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmeansd_within_mse",
				Help: "Most recent within-cluster mean squared error, by job.",
			},
			[]string{"job"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmeansd_phase_duration_seconds",
				Help:    "Duration of a map/reduce training phase.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		EmptyClusterRescues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_empty_cluster_rescues_total",
				Help: "Total empty-cluster rescues performed during Lloyd's iterations, by job.",
			},
			[]string{"job"},
		),
		RowsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_rows_ingested_total",
				Help: "Total data rows ingested, by source format.",
			},
			[]string{"format"},
		),
		CentroidsExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmeansd_centroids_exported_total",
				Help: "Total centroids exported to a vector backend.",
			},
			[]string{"backend"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.TrainingIterationsTotal,
		m.TrainingJobsTotal,
		m.ActiveTrainingJobs,
		m.ConvergenceDelta,
		m.WithinMSE,
		m.PhaseDuration,
		m.EmptyClusterRescues,
		m.RowsIngested,
		m.CentroidsExported,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request's metrics.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordIteration records one accepted Lloyd's iteration for a job.
func (m *Metrics) RecordIteration(job string, delta, withinMSE float64) {
	m.TrainingIterationsTotal.WithLabelValues(job).Inc()
	m.ConvergenceDelta.WithLabelValues(job).Set(delta)
	m.WithinMSE.WithLabelValues(job).Set(withinMSE)
}

// RecordRescue records an empty-cluster rescue for a job.
func (m *Metrics) RecordRescue(job string) {
	m.EmptyClusterRescues.WithLabelValues(job).Inc()
}

// RecordJobTerminal records a training job reaching a terminal status.
func (m *Metrics) RecordJobTerminal(status string) {
	m.TrainingJobsTotal.WithLabelValues(status).Inc()
}

// RecordPhase records the wall-clock duration of a map/reduce training phase.
func (m *Metrics) RecordPhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordIngest records rows ingested from a source format.
func (m *Metrics) RecordIngest(format string, rows int) {
	m.RowsIngested.WithLabelValues(format).Add(float64(rows))
}

// RecordExport records centroids exported to a vector backend.
func (m *Metrics) RecordExport(backend string, count int) {
	m.CentroidsExported.WithLabelValues(backend).Add(float64(count))
}

// Middleware returns an HTTP middleware that instruments requests.
func (m *Metrics) Middleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.RecordRequest(endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
