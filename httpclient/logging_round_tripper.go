/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"time"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone LoggingMode = "none"
	LoggingModeAll  LoggingMode = "all"
	// LoggingModeFailed logs only failed (transport error or 5xx), and slow requests.
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging client requests.
type LoggingRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Opts        LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Logger is used when there is no logger in the request context (see middleware.GetLoggerFromContext).
	Logger log.FieldLogger

	// Mode of logging: none, all or failed. The "all" mode is used if it's empty.
	Mode LoggingMode

	// SlowRequestThreshold makes slow requests be logged at warn level. Zero disables it.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs all requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, requestType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, requestType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts is a more configurable version of NewLoggingRoundTripper.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, requestType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, RequestType: requestType, Opts: opts}
}

// RoundTrip sends the request and logs its result.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	failed := err != nil || resp.StatusCode >= http.StatusInternalServerError
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if rt.Opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	logger := rt.logger(r)
	if logger == nil {
		return resp, err
	}
	fields := []log.Field{
		log.String("request_type", rt.RequestType),
		log.String("method", r.Method),
		log.String("url", r.URL.Redacted()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	switch {
	case err != nil:
		logger.Error("client HTTP request failed", append(fields, log.Error(err))...)
	case failed:
		logger.Warn("client HTTP request failed", append(fields, log.Int("status", resp.StatusCode))...)
	case slow:
		logger.Warn("slow client HTTP request", append(fields, log.Int("status", resp.StatusCode))...)
	default:
		logger.Info("client HTTP request done", append(fields, log.Int("status", resp.StatusCode))...)
	}
	return resp, err
}

func (rt *LoggingRoundTripper) logger(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return rt.Opts.Logger
}
