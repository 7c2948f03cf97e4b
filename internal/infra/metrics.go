package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the try-on collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry     *prometheus.Registry
	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	pollRequests *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tryon",
			Name:      "jobs_total",
			Help:      "Try-on runs by provider and outcome.",
		}, []string{"provider", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tryon",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a try-on run from input resolution to extraction.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		pollRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tryon",
			Name:      "poll_requests_total",
			Help:      "Status requests issued while waiting for remote jobs.",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.jobsTotal, m.jobDuration, m.pollRequests)
	return m
}

// ObserveJob records one finished run.
func (m *Metrics) ObserveJob(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(provider, outcome).Inc()
	m.jobDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// IncPoll counts one status request.
func (m *Metrics) IncPoll(provider string) {
	if m == nil {
		return
	}
	m.pollRequests.WithLabelValues(provider).Inc()
}

// JobsTotal exposes the job counter for assertions.
func (m *Metrics) JobsTotal() *prometheus.CounterVec {
	return m.jobsTotal
}

// PollRequests exposes the poll counter for assertions.
func (m *Metrics) PollRequests() *prometheus.CounterVec {
	return m.pollRequests
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
