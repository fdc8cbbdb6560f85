/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/log/logtest"
)

func newTestHandler(t *testing.T, cfg *Config) (http.Handler, *int) {
	t.Helper()
	served := 0
	mw, err := Middleware(cfg)
	require.NoError(t, err)
	return mw(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		served++
		rw.WriteHeader(http.StatusOK)
	})), &served
}

func newTestConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com", "https://*.example.org"}
	cfg.ExposedHeaders = []string{"X-Request-ID"}
	return cfg
}

func newPreflightRequest(origin, method, headers string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "http://gateway.local/api/items", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	return req
}

func TestMiddleware_NonCORSRequests(t *testing.T) {
	h, served := newTestHandler(t, newTestConfig())

	t.Run("no origin", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "http://gateway.local/", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Empty(t, resp.Header())
	})

	t.Run("same origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://gateway.local:80/", nil)
		req.Host = "gateway.local"
		req.Header.Set("Origin", "http://gateway.local:80")
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
	})

	require.Equal(t, 2, *served)
}

func TestMiddleware_ActualRequest(t *testing.T) {
	h, served := newTestHandler(t, newTestConfig())

	for _, origin := range []string{"https://app.example.com", "https://shop.example.org"} {
		req := httptest.NewRequest(http.MethodPost, "http://gateway.local/api/items", nil)
		req.Header.Set("Origin", origin)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, origin, resp.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
		require.Equal(t, "X-Request-ID", resp.Header().Get("Access-Control-Expose-Headers"))
		require.Contains(t, resp.Header().Values("Vary"), "Origin")
		require.Empty(t, resp.Header().Get("Access-Control-Allow-Methods"))
	}
	require.Equal(t, 2, *served)
}

func TestMiddleware_Preflight(t *testing.T) {
	h, served := newTestHandler(t, newTestConfig())

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, newPreflightRequest("https://app.example.com", http.MethodPut, "Content-Type, X-Custom"))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET,POST,PUT,DELETE,OPTIONS", resp.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type,X-Custom", resp.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "1800", resp.Header().Get("Access-Control-Max-Age"))
	require.Empty(t, resp.Header().Get("Access-Control-Expose-Headers"))
	require.Equal(t, 0, *served, "preflight must not reach the application")
}

func TestMiddleware_Rejections(t *testing.T) {
	cfg := newTestConfig()
	cfg.AllowedHeaders = []string{"Content-Type"}
	h, served := newTestHandler(t, cfg)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{
			name: "preflight from unknown origin",
			req: func() *http.Request {
				return newPreflightRequest("https://evil.example.com", http.MethodGet, "")
			},
		},
		{
			name: "preflight with disallowed method",
			req: func() *http.Request {
				return newPreflightRequest("https://app.example.com", http.MethodPatch, "")
			},
		},
		{
			name: "preflight with disallowed headers",
			req: func() *http.Request {
				return newPreflightRequest("https://app.example.com", http.MethodGet, "X-Secret")
			},
		},
		{
			name: "actual request from unknown origin",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "http://gateway.local/", nil)
				req.Header.Set("Origin", "https://example.org")
				return req
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logRecorder := logtest.NewRecorder()
			req := tt.req()
			req = req.WithContext(middleware.NewContextWithLogger(req.Context(), logRecorder))
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)

			require.Equal(t, http.StatusForbidden, resp.Code)
			require.Equal(t, RejectionBody, resp.Body.String())
			require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))

			entry, found := logRecorder.FindEntry("cross-origin request is rejected")
			require.True(t, found)
			require.Equal(t, log.LevelWarn, entry.Level)
		})
	}
	require.Equal(t, 0, *served)
}

func TestMiddleware_DefaultPolicyDeniesCrossOrigin(t *testing.T) {
	h, served := newTestHandler(t, NewDefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "http://gateway.local/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
	require.Equal(t, 0, *served)
}

func TestMiddleware_AnyOrigin(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.AllowedOrigins = []string{Wildcard}
	cfg.AllowCredentials = false
	h, _ := newTestHandler(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://gateway.local/", nil)
	req.Header.Set("Origin", "https://anything.test")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "https://anything.test", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMiddleware_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.AllowedOrigins = []string{Wildcard}
	_, err := Middleware(cfg)
	require.Error(t, err)
}
