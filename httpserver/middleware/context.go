/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-throttlegate/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
)

// valueFromContext returns the zero value of T if the key is missing.
func valueFromContext[T any](ctx context.Context, key ctxKey) T {
	val, _ := ctx.Value(key).(T)
	return val
}

// NewContextWithRequestID stores the X-Request-ID value (external request id).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func GetRequestIDFromContext(ctx context.Context) string {
	return valueFromContext[string](ctx, ctxKeyRequestID)
}

// NewContextWithInternalRequestID stores the id generated by the gateway for each request.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

func GetInternalRequestIDFromContext(ctx context.Context) string {
	return valueFromContext[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger stores the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns nil if there is no logger in ctx.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return valueFromContext[log.FieldLogger](ctx, ctxKeyLogger)
}

// NewContextWithLoggingParams stores the params that are filled by handlers and logged when the request completes.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return valueFromContext[*LoggingParams](ctx, ctxKeyLoggingParams)
}

func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns zero time if RequestStartTime middleware wasn't applied.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return valueFromContext[time.Time](ctx, ctxKeyRequestStartTime)
}

// RequestStartTime saves the time the request was received. It goes first in the chain,
// so durations measured by logging and metrics include all other middlewares.
func RequestStartTime() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	}
}
