// Package observability wires logging and Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	RepliesTotal          *prometheus.CounterVec
	UpstreamAttemptsTotal *prometheus.CounterVec
	UpstreamRetriesTotal  *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec
	CredentialSources     *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry, together with the
// standard process and Go runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_replies_total",
				Help: "Total number of chat replies by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_attempts_total",
				Help: "Total number of upstream calls by provider and classification",
			},
			[]string{"provider", "result"},
		),
		UpstreamRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_retries_total",
				Help: "Total number of delayed retries after a transient upstream condition",
			},
			[]string{"provider"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_request_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider"},
		),
		CredentialSources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credential_source_total",
				Help: "Resolved credential source per request",
			},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RepliesTotal,
		m.UpstreamAttemptsTotal,
		m.UpstreamRetriesTotal,
		m.UpstreamDuration,
		m.CredentialSources,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one upstream call.
func (m *Metrics) ObserveAttempt(provider, result string, elapsed time.Duration) {
	m.UpstreamAttemptsTotal.WithLabelValues(provider, result).Inc()
	m.UpstreamDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRetry records one delayed retry.
func (m *Metrics) ObserveRetry(provider string) {
	m.UpstreamRetriesTotal.WithLabelValues(provider).Inc()
}

// ObserveReply records the final outcome of a chat request.
func (m *Metrics) ObserveReply(outcome string) {
	m.RepliesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCredentialSource records which source satisfied the credential lookup.
func (m *Metrics) ObserveCredentialSource(source string) {
	m.CredentialSources.WithLabelValues(source).Inc()
}
