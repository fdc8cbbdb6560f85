/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log/logtest"
)

func TestHealthCheckHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name         string
		healthCheck  HealthCheck
		wantStatus   int
		wantBody     string
		wantErrorLog bool
	}{
		{
			name:       "no health check, empty components",
			wantStatus: http.StatusOK,
			wantBody:   `{"components":{}}`,
		},
		{
			name: "all components are healthy",
			healthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return HealthCheckResult{"throttle_registry": HealthCheckStatusOK, "upstream": HealthCheckStatusOK}, nil
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"components":{"throttle_registry":true,"upstream":true}}`,
		},
		{
			name: "upstream is unhealthy",
			healthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return HealthCheckResult{"throttle_registry": HealthCheckStatusOK, "upstream": HealthCheckStatusFail}, nil
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"components":{"throttle_registry":true,"upstream":false}}`,
		},
		{
			name: "health check error",
			healthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return nil, errors.New("registry is closed")
			},
			wantStatus:   http.StatusInternalServerError,
			wantErrorLog: true,
		},
		{
			name: "health check is canceled",
			healthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return nil, context.Canceled
			},
			wantStatus:   StatusClientClosedRequest,
			wantErrorLog: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			logRecorder := logtest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, HealthCheckPath, nil)
			req = req.WithContext(middleware.NewContextWithLogger(req.Context(), logRecorder))
			resp := httptest.NewRecorder()

			NewHealthCheckHandler(tt.healthCheck).ServeHTTP(resp, req)

			require.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, resp.Body.String())
			}
			_, found := logRecorder.FindEntry("error while checking health")
			require.Equal(t, tt.wantErrorLog, found)
		})
	}
}

func TestHealthCheckHandler_CanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, HealthCheckPath, nil).WithContext(ctx)
	resp := httptest.NewRecorder()

	NewHealthCheckHandler(func(context.Context) (HealthCheckResult, error) {
		return HealthCheckResult{"throttle_registry": HealthCheckStatusOK}, nil
	}).ServeHTTP(resp, req)

	require.Equal(t, StatusClientClosedRequest, resp.Code)
}

func TestCombineHealthChecks(t *testing.T) {
	registryCheck := func(context.Context) (HealthCheckResult, error) {
		return HealthCheckResult{"throttle_registry": HealthCheckStatusOK}, nil
	}
	upstreamCheck := func(context.Context) (HealthCheckResult, error) {
		return HealthCheckResult{"upstream": HealthCheckStatusFail}, nil
	}

	res, err := CombineHealthChecks(registryCheck, nil, upstreamCheck)(context.Background())
	require.NoError(t, err)
	require.Equal(t, HealthCheckResult{"throttle_registry": HealthCheckStatusOK, "upstream": HealthCheckStatusFail}, res)

	failing := func(context.Context) (HealthCheckResult, error) {
		return nil, errors.New("boom")
	}
	_, err = CombineHealthChecks(registryCheck, failing, upstreamCheck)(context.Background())
	require.EqualError(t, err, "boom")
}
