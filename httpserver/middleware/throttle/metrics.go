/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "github.com/prometheus/client_golang/prometheus"

const metricsLabelOutcome = "outcome"

// Request outcomes used as values of the "outcome" label.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeDryRun   = "dry_run"
	OutcomeExcluded = "excluded"
	OutcomeError    = "error"
)

// MetricsCollector is an interface for collecting metrics of the throttling middleware.
type MetricsCollector interface {
	// IncRequests increments the number of throttled requests with the given outcome.
	IncRequests(outcome string)
	// IncClients is called when a bucket for a new client is created.
	IncClients()
	// DecClients is called when an idle client is evicted.
	DecClients()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents a collector of Prometheus metrics for the throttling middleware.
type PrometheusMetrics struct {
	Requests *prometheus.CounterVec
	Clients  prometheus.Gauge
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts is a more configurable version of NewPrometheusMetrics.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Name:        "throttle_requests_total",
		Help:        "Number of requests processed by the throttling middleware.",
		ConstLabels: opts.ConstLabels,
	}, []string{metricsLabelOutcome})

	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "throttle_clients",
		Help:        "Current number of clients tracked by the throttling middleware.",
		ConstLabels: opts.ConstLabels,
	})

	return &PrometheusMetrics{Requests: requests, Clients: clients}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Requests, pm.Clients)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Requests)
	prometheus.Unregister(pm.Clients)
}

// IncRequests increments the counter of processed requests.
func (pm *PrometheusMetrics) IncRequests(outcome string) {
	pm.Requests.With(prometheus.Labels{metricsLabelOutcome: outcome}).Inc()
}

// IncClients increments the gauge of tracked clients.
func (pm *PrometheusMetrics) IncClients() {
	pm.Clients.Inc()
}

// DecClients decrements the gauge of tracked clients.
func (pm *PrometheusMetrics) DecClients() {
	pm.Clients.Dec()
}

type disabledMetrics struct{}

func (disabledMetrics) IncRequests(string) {}
func (disabledMetrics) IncClients()        {}
func (disabledMetrics) DecClients()        {}
