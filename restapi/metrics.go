/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels of the <namespace>_restapi_response_errors_total counter.
const (
	MetricsLabelErrorDomain = "domain"
	MetricsLabelErrorCode   = "code"
	MetricsLabelStatusCode  = "status_code"
)

// errorResponses is nil until MustInitAndRegisterMetrics is called, so error responses are not counted by default.
var errorResponses *prometheus.CounterVec

// MustInitAndRegisterMetrics starts counting JSON error responses written by RespondError.
// It panics if the counter is already registered.
func MustInitAndRegisterMetrics(namespace string) {
	errorResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restapi",
		Name:      "response_errors_total",
		Help:      "Number of JSON error responses (404, 405, 500, 502) sent by the gateway.",
	}, []string{MetricsLabelErrorDomain, MetricsLabelErrorCode, MetricsLabelStatusCode})
	prometheus.MustRegister(errorResponses)
}

// UnregisterMetrics stops counting error responses.
func UnregisterMetrics() {
	if errorResponses == nil {
		return
	}
	prometheus.Unregister(errorResponses)
	errorResponses = nil
}

func countErrorResponse(httpStatusCode int, err *Error) {
	if errorResponses != nil {
		errorResponses.WithLabelValues(err.Domain, err.Code, strconv.Itoa(httpStatusCode)).Inc()
	}
}
