/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log/logtest"
	"github.com/acronis/go-throttlegate/testutil"
)

func TestNewWithOpts(t *testing.T) {
	var reqsCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Seen-User-Agent", r.Header.Get("User-Agent"))
		rw.Header().Set("X-Seen-Request-ID", r.Header.Get(middleware.HeaderRequestID))
		if reqsCount.Inc() == 1 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Logging.Mode = LoggingModeAll
	collector := NewPrometheusMetricsCollector("")
	logRecorder := logtest.NewRecorder()
	client, err := NewWithOpts(cfg, Opts{
		RequestType: "health_check",
		UserAgent:   "throttlegate-healthcheck",
		Logger:      logRecorder,
		Collector:   collector,
	})
	require.NoError(t, err)

	ctx := middleware.NewContextWithRequestID(context.Background(), "req-42")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), reqsCount.Load())
	require.Equal(t, "throttlegate-healthcheck", resp.Header.Get("X-Seen-User-Agent"))
	require.Equal(t, "req-42", resp.Header.Get("X-Seen-Request-ID"))

	// Every attempt is logged and measured.
	require.Len(t, logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "client HTTP request failed"
	}), 1)
	_, found := logRecorder.FindEntry("client HTTP request done")
	require.True(t, found)
	host := server.Listener.Addr().String()
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues("health_check", host, http.MethodGet, "503").(prometheus.Histogram), 1)
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues("health_check", host, http.MethodGet, "200").(prometheus.Histogram), 1)
}

func TestNewWithOpts_DisableRetries(t *testing.T) {
	var reqsCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqsCount.Inc()
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := MustWithOpts(NewDefaultConfig(), Opts{RequestType: "proxy", DisableRetries: true})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, int32(1), reqsCount.Load())
}

func TestNewTransportWithOpts_Chain(t *testing.T) {
	cfg := NewDefaultConfig()
	rt, err := NewTransportWithOpts(cfg, Opts{})
	require.NoError(t, err)
	retryable, ok := rt.(*RetryableRoundTripper)
	require.True(t, ok)
	require.Equal(t, DefaultRetriesMaxAttempts, retryable.MaxRetryAttempts)
	_, ok = retryable.Delegate.(*RequestIDRoundTripper)
	require.True(t, ok)

	cfg.Retries.Enabled = false
	cfg.Logging.Mode = LoggingModeNone
	cfg.Metrics.Enabled = false
	delegate := &http.Transport{}
	rt, err = NewTransportWithOpts(cfg, Opts{Delegate: delegate})
	require.NoError(t, err)
	require.Equal(t, &RequestIDRoundTripper{Delegate: delegate}, rt)

	cfg.Retries.Enabled = true
	cfg.Retries.MaxAttempts = -2
	_, err = NewTransportWithOpts(cfg, Opts{})
	require.EqualError(t, err, "create retryable round tripper: incorrect max retry attempts -2")
}
