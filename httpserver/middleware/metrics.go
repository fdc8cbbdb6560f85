/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label names of the HTTP request duration histogram.
const (
	MetricsLabelMethod       = "method"
	MetricsLabelRoutePattern = "route_pattern"
	MetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets covers both fast rejections and slow upstream responses.
var DefaultHTTPRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts configures HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector holds Prometheus metrics of the served requests.
// Rejected (429) requests are observed as well, so the histogram shows the share of throttled traffic.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  prometheus.Gauge
}

// NewHTTPRequestMetricsCollector creates a collector with default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of the served HTTP requests.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{MetricsLabelMethod, MetricsLabelRoutePattern, MetricsLabelStatusCode}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
	prometheus.Unregister(c.InFlight)
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern string, status int, startTime time.Time) {
	c.Durations.WithLabelValues(method, routePattern, strconv.Itoa(status)).Observe(time.Since(startTime).Seconds())
}

// HTTPRequestMetricsOpts configures HTTPRequestMetricsWithOpts.
type HTTPRequestMetricsOpts struct {
	// ExcludedEndpoints are exact paths that are not measured (e.g. /metrics and /healthz).
	ExcludedEndpoints []string
}

// HTTPRequestMetrics measures every request with the collector.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is HTTPRequestMetrics with options.
// A panic in the next handler is observed as 500 and re-panicked, aborted requests are not observed.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, path := range opts.ExcludedEndpoints {
		excluded[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if _, skip := excluded[r.URL.Path]; skip {
				next.ServeHTTP(rw, r)
				return
			}

			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}

			collector.InFlight.Inc()
			defer collector.InFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				// Route pattern is known only after routing, i.e. after next is called.
				routePattern := getRoutePattern(r)
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler {
						collector.observe(r.Method, routePattern, http.StatusInternalServerError, startTime)
					}
					panic(p)
				}
				collector.observe(r.Method, routePattern, responseStatus(wrw), startTime)
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}
