/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
	"github.com/ssgreg/logf"

	"github.com/acronis/go-throttlegate/log"
)

// DefaultSlowRequestThreshold is a duration after which the request is considered slow
// and its time slots are added to the access log line.
const DefaultSlowRequestThreshold = time.Second

// DefaultSecretHeaderMarkers are lowercase substrings of request header names which values are never logged as is.
var DefaultSecretHeaderMarkers = []string{"authorization", "cookie", "token", "api-key", "apikey", "secret", "password"}

const maskedHeaderValue = "***"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the "request started" log line.
	RequestStart bool

	// RequestHeaders maps request header names to log field keys.
	RequestHeaders map[string]string

	// SecretHeaderMarkers overrides DefaultSecretHeaderMarkers.
	// A logged header whose lowercase name contains one of the markers has its value replaced with "***".
	SecretHeaderMarkers []string

	// ExcludedEndpoints are not logged unless the response status is 4xx or 5xx.
	ExcludedEndpoints []string

	// AddRequestInfoToLogger makes the logger in the request context carry method, uri and client address.
	AddRequestInfoToLogger bool

	SlowRequestThreshold time.Duration
}

type loggingHandler struct {
	next         http.Handler
	logger       log.FieldLogger
	opts         LoggingOpts
	excludedURLs map[string]struct{}
	maskedHdrs   map[string]bool
}

// Logging is a middleware that writes an access log line for each HTTP request.
// Also, it puts logger (with external and internal request's ids in fields) into request's context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	excludedURLs := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, endpoint := range opts.ExcludedEndpoints {
		excludedURLs[endpoint] = struct{}{}
	}
	markers := opts.SecretHeaderMarkers
	if markers == nil {
		markers = DefaultSecretHeaderMarkers
	}
	maskedHdrs := secretHeaders(opts.RequestHeaders, markers)
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts, excludedURLs: excludedURLs, maskedHdrs: maskedHdrs}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)

	logFields := make([]log.Field, 0, 8)
	logFields = append(logFields,
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	)
	if addrIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		logFields = append(logFields, log.String("remote_addr_ip", addrIP))
	}
	if originAddr := getOriginAddr(r); originAddr != "" {
		logFields = append(logFields, log.String("origin_addr", originAddr))
	}
	for reqHeaderName, logKey := range h.opts.RequestHeaders {
		hdrVal := r.Header.Get(reqHeaderName)
		if hdrVal != "" && h.maskedHdrs[reqHeaderName] {
			hdrVal = maskedHeaderValue
		}
		logFields = append(logFields, log.String(logKey, hdrVal))
	}

	logger := loggerForNext.With(logFields...)
	if h.opts.AddRequestInfoToLogger {
		loggerForNext = logger
	}

	_, noLog := h.excludedURLs[r.URL.Path]
	if h.opts.RequestStart && !noLog {
		logger.Info("request started")
	}

	lp := &LoggingParams{}
	r = r.WithContext(NewContextWithLoggingParams(NewContextWithLogger(ctx, loggerForNext), lp))
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r)

	status := responseStatus(wrw)
	if noLog && status < http.StatusBadRequest {
		return
	}
	duration := time.Since(startTime)
	fields := append([]log.Field{
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	}, lp.fields...)
	if duration >= h.opts.SlowRequestThreshold && len(lp.timeSlots) != 0 {
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: lp.timeSlots})
	}
	logger.Info(fmt.Sprintf("response completed in %.3fs", duration.Seconds()), fields...)
}

// getOriginAddr returns the first address from X-Forwarded-For or X-Real-IP.
func getOriginAddr(r *http.Request) string {
	if forwardedFor := r.Header.Get(headerForwardedFor); forwardedFor != "" {
		if first := strings.IndexByte(forwardedFor, ','); first != -1 {
			forwardedFor = forwardedFor[:first]
		}
		return strings.TrimSpace(forwardedFor)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}

// secretHeaders resolves once which of the logged headers carry secrets.
func secretHeaders(reqHeaders map[string]string, markers []string) map[string]bool {
	if len(reqHeaders) == 0 || len(markers) == 0 {
		return nil
	}
	lowered := make([]string, 0, len(markers))
	for _, marker := range markers {
		lowered = append(lowered, strings.ToLower(marker))
	}
	matcher := ahocorasick.NewStringMatcher(lowered)
	result := make(map[string]bool, len(reqHeaders))
	for name := range reqHeaders {
		if matcher.Contains([]byte(strings.ToLower(name))) {
			result[name] = true
		}
	}
	return result
}
