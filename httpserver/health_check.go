/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
)

// StatusClientClosedRequest is a special HTTP status code used by Nginx to show that the client
// closed the request before the server could send a response
const StatusClientClosedRequest = 499

// HealthCheckComponentName is a type alias for component names. It's used for better readability.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult is a type alias for result of health-check operation. It's used for better readability.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck returns statuses of the gateway components (throttle registry, upstream, etc.).
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler implements http.Handler and does health-check of the gateway.
// It responds with 503 if any component fails.
type HealthCheckHandler struct {
	healthCheckFn HealthCheck
}

// NewHealthCheckHandler creates a new http.Handler for doing health-check.
func NewHealthCheckHandler(fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{fn}
}

// CombineHealthChecks returns a HealthCheck that merges results of the passed ones.
// The first error stops the check.
func CombineHealthChecks(checks ...HealthCheck) HealthCheck {
	return func(ctx context.Context) (HealthCheckResult, error) {
		res := HealthCheckResult{}
		for _, check := range checks {
			if check == nil {
				continue
			}
			partial, err := check(ctx)
			if err != nil {
				return nil, err
			}
			for name, status := range partial {
				res[name] = status
			}
		}
		return res, nil
	}
}

// ServeHTTP serves heath-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	hasUnhealthyComponent := false
	respData := healthCheckResponseData{Components: map[string]bool{}}
	for name, status := range hcResult {
		respData.Components[name] = status == HealthCheckStatusOK
		if status != HealthCheckStatusOK {
			hasUnhealthyComponent = true
		}
	}

	if errors.Is(r.Context().Err(), context.Canceled) {
		rw.WriteHeader(StatusClientClosedRequest)
		return
	}

	respStatus := http.StatusOK
	if hasUnhealthyComponent {
		respStatus = http.StatusServiceUnavailable
	}
	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}
