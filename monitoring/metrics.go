// Package monitoring holds the Prometheus metrics of the engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "poof_palace"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	cycleOutcomes  *prometheus.CounterVec
	publishResults *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job invocations by outcome",
		},
		[]string{"job", "outcome"},
	)
	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"job"},
	)
	m.cycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_cycles_total",
			Help:      "Content cycles by final stage reached",
		},
		[]string{"stage"},
	)
	m.publishResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by platform and result",
		},
		[]string{"platform", "result"},
	)
	m.lastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job",
		},
		[]string{"job"},
	)

	m.registry.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.cycleOutcomes,
		m.publishResults,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveJob records one scheduled invocation.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveCycle records how far a content cycle got: "ideation",
// "image", "captions" or "published".
func (m *Metrics) ObserveCycle(stage string) {
	if m == nil {
		return
	}
	m.cycleOutcomes.WithLabelValues(stage).Inc()
}

// ObservePublish records one publish attempt.
func (m *Metrics) ObservePublish(platform string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.publishResults.WithLabelValues(platform, result).Inc()
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
