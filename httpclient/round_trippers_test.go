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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/log/logtest"
	"github.com/acronis/go-throttlegate/testutil"
)

func newStatusServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Seen-User-Agent", r.Header.Get("User-Agent"))
		rw.Header().Set("X-Seen-Request-ID", r.Header.Get(middleware.HeaderRequestID))
		rw.WriteHeader(statusCode)
	}))
}

func doGet(t *testing.T, rt http.RoundTripper, ctx context.Context, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestLoggingRoundTripper(t *testing.T) {
	okServer := newStatusServer(http.StatusOK)
	defer okServer.Close()
	failServer := newStatusServer(http.StatusBadGateway)
	defer failServer.Close()

	t.Run("all mode", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "proxy", LoggingRoundTripperOpts{Logger: logRecorder})
		doGet(t, rt, context.Background(), okServer.URL+"/path", nil)

		require.Len(t, logRecorder.Entries(), 1)
		entry := logRecorder.Entries()[0]
		require.Equal(t, "client HTTP request done", entry.Text)
		require.Equal(t, log.LevelInfo, entry.Level)
		requestType, ok := entry.FindField("request_type")
		require.True(t, ok)
		require.Equal(t, "proxy", string(requestType.Bytes))
		status, ok := entry.FindField("status")
		require.True(t, ok)
		require.Equal(t, int64(http.StatusOK), status.Int)
	})

	t.Run("failed mode", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "proxy", LoggingRoundTripperOpts{
			Logger: logRecorder,
			Mode:   LoggingModeFailed,
		})
		doGet(t, rt, context.Background(), okServer.URL, nil)
		require.Empty(t, logRecorder.Entries())

		doGet(t, rt, context.Background(), failServer.URL, nil)
		require.Len(t, logRecorder.Entries(), 1)
		require.Equal(t, "client HTTP request failed", logRecorder.Entries()[0].Text)
		require.Equal(t, log.LevelWarn, logRecorder.Entries()[0].Level)
	})

	t.Run("slow request", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "proxy", LoggingRoundTripperOpts{
			Logger:               logRecorder,
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: time.Nanosecond,
		})
		doGet(t, rt, context.Background(), okServer.URL, nil)
		_, found := logRecorder.FindEntry("slow client HTTP request")
		require.True(t, found)
	})

	t.Run("transport error", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "proxy", LoggingRoundTripperOpts{Logger: logRecorder})
		req, err := http.NewRequest(http.MethodGet, "http://"+testutil.GetLocalAddrWithFreeTCPPort(), nil)
		require.NoError(t, err)
		_, err = rt.RoundTrip(req) //nolint:bodyclose
		require.Error(t, err)
		entry, found := logRecorder.FindEntry("client HTTP request failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})

	t.Run("logger from context", func(t *testing.T) {
		optsLogRecorder := logtest.NewRecorder()
		ctxLogRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "proxy", LoggingRoundTripperOpts{Logger: optsLogRecorder})
		doGet(t, rt, middleware.NewContextWithLogger(context.Background(), ctxLogRecorder), okServer.URL, nil)
		require.Empty(t, optsLogRecorder.Entries())
		require.Len(t, ctxLogRecorder.Entries(), 1)
	})
}

func TestMetricsRoundTripper(t *testing.T) {
	server := newStatusServer(http.StatusTeapot)
	defer server.Close()

	collector := NewPrometheusMetricsCollector("")
	rt := NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{
		RequestType: "health_check",
		Collector:   collector,
	})
	doGet(t, rt, context.Background(), server.URL, nil)
	doGet(t, rt, context.Background(), server.URL, nil)

	host := server.Listener.Addr().String()
	hist := collector.Durations.WithLabelValues("health_check", host, http.MethodGet, "418").(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 2)

	req, err := http.NewRequest(http.MethodGet, "http://"+testutil.GetLocalAddrWithFreeTCPPort(), nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req) //nolint:bodyclose
	require.Error(t, err)
	hist = collector.Durations.WithLabelValues("health_check", req.URL.Host, http.MethodGet, "0").(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 1)
}

func TestRequestIDRoundTripper(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	defer server.Close()

	rt := NewRequestIDRoundTripper(http.DefaultTransport)
	ctx := middleware.NewContextWithRequestID(context.Background(), "req-1")

	resp := doGet(t, rt, ctx, server.URL, nil)
	require.Equal(t, "req-1", resp.Header.Get("X-Seen-Request-ID"))

	resp = doGet(t, rt, ctx, server.URL, http.Header{middleware.HeaderRequestID: {"explicit"}})
	require.Equal(t, "explicit", resp.Header.Get("X-Seen-Request-ID"))

	resp = doGet(t, rt, context.Background(), server.URL, nil)
	require.Empty(t, resp.Header.Get("X-Seen-Request-ID"))
}

func TestUserAgentRoundTripper(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	defer server.Close()

	rt := NewUserAgentRoundTripper(http.DefaultTransport, "throttlegate")
	resp := doGet(t, rt, context.Background(), server.URL, nil)
	require.Equal(t, "throttlegate", resp.Header.Get("X-Seen-User-Agent"))
	resp = doGet(t, rt, context.Background(), server.URL, http.Header{"User-Agent": {"curl/8.0"}})
	require.Equal(t, "curl/8.0", resp.Header.Get("X-Seen-User-Agent"))

	rt = NewUserAgentRoundTripperWithStrategy(http.DefaultTransport, "throttlegate", UserAgentUpdateStrategyAppend)
	resp = doGet(t, rt, context.Background(), server.URL, http.Header{"User-Agent": {"curl/8.0"}})
	require.Equal(t, "curl/8.0 throttlegate", resp.Header.Get("X-Seen-User-Agent"))
}
