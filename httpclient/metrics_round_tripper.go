/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelRequestType = "type"
	metricsLabelRemoteAddr  = "remote_address"
	metricsLabelMethod      = "method"
	metricsLabelStatus      = "status"
)

// MetricsCollector is an interface for collecting metrics of the client requests.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request. Status is "0" when the round trip fails.
	RequestDuration(requestType, remoteAddress, method, status string, startTime time.Time)
}

// PrometheusMetricsCollector collects durations of the client requests into the Prometheus histogram.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a new PrometheusMetricsCollector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the upstream requests durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{metricsLabelRequestType, metricsLabelRemoteAddr, metricsLabelMethod, metricsLabelStatus}),
	}
}

// MustRegister registers the histogram in the default Prometheus registerer.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister unregisters the histogram from the default Prometheus registerer.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration implements MetricsCollector.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, remoteAddress, method, status string, start time.Time) {
	p.Durations.WithLabelValues(requestType, remoteAddress, method, status).Observe(time.Since(start).Seconds())
}

// MetricsRoundTripper is an HTTP transport that measures client requests.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// MetricsRoundTripperOpts represents an options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// RequestType is used as the "type" label. DefaultRequestType is used if it's empty.
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport that measures client requests.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, RequestType: requestType, Collector: opts.Collector}
}

// RoundTrip sends the request and observes its duration.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.RequestDuration(rt.RequestType, r.URL.Host, r.Method, status, start)
	return resp, err
}
