/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/config"
	"github.com/acronis/go-throttlegate/httpserver/middleware/throttle"
	"github.com/acronis/go-throttlegate/internal/upstream"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/log/logtest"
	"github.com/acronis/go-throttlegate/profserver"
	"github.com/acronis/go-throttlegate/testutil"
)

const testConfigYAML = `
log:
  level: debug
server:
  address: 127.0.0.1:0
throttle:
  maxRequestsPerMinute: 2
  registry:
    idleTTL: 2m
cors:
  allowedOrigins:
    - https://*.example.com
`

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppConfig(t *testing.T) {
	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", testConfigYAML))
	require.NoError(t, err)

	require.Equal(t, log.LevelDebug, cfg.Log.Level)
	require.Equal(t, "127.0.0.1:0", cfg.Server.Address)
	require.Equal(t, 2, cfg.Throttle.MaxRequestsPerMinute)
	require.Equal(t, throttle.AlgTokenBucket, cfg.Throttle.Alg)
	require.Equal(t, config.TimeDuration(2*time.Minute), cfg.Throttle.Registry.IdleTTL)
	require.Equal(t, "X-Forwarded-For", cfg.Throttle.ClientKey.Header)
	require.Equal(t, []string{"https://*.example.com"}, cfg.CORS.AllowedOrigins)
	require.Empty(t, cfg.Upstream.URL)
	require.Equal(t, config.TimeDuration(upstream.DefaultDialTimeout), cfg.Upstream.Timeouts.Dial)
	require.False(t, cfg.ProfServer.Enabled)
}

func TestLoadAppConfig_EnvVars(t *testing.T) {
	t.Setenv("THROTTLEGATE_THROTTLE_MAXREQUESTSPERMINUTE", "7")
	t.Setenv("THROTTLEGATE_THROTTLE_DRYRUN", "true")

	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", testConfigYAML))
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Throttle.MaxRequestsPerMinute)
	require.True(t, cfg.Throttle.DryRun)
}

func TestLoadAppConfig_Errors(t *testing.T) {
	_, err := loadAppConfig(writeConfigFile(t, "config.toml", ""))
	require.Error(t, err)

	_, err = loadAppConfig(writeConfigFile(t, "config.yml", "throttle:\n  maxRequestsPerMinute: 0\n"))
	require.EqualError(t, err, "throttle.maxRequestsPerMinute: should be >= 1, got 0")

	_, err = loadAppConfig(writeConfigFile(t, "config.yml", "server:\n  address: 127.0.0.1:0\nupstream:\n  url: ftp://backend\n"))
	require.Error(t, err)
}

func TestGateway(t *testing.T) {
	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", testConfigYAML))
	require.NoError(t, err)

	gw, err := newGateway(cfg, logtest.NewLogger(), gatewayMetrics{})
	require.NoError(t, err)
	require.Len(t, gw.Unit.Units, 2, "eviction worker should be started when idleTTL is set")

	fatalErr := make(chan error, 1)
	go gw.Unit.Start(fatalErr)
	require.Eventually(t, func() bool { return gw.Server.GetPort() > 0 }, 3*time.Second, 10*time.Millisecond)
	addr := fmt.Sprintf("127.0.0.1:%d", gw.Server.GetPort())
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	defer func() {
		require.NoError(t, gw.Unit.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	}()

	doRequest := func(client string) *http.Response {
		req, reqErr := http.NewRequest(http.MethodGet, "http://"+addr+"/api/items", http.NoBody)
		require.NoError(t, reqErr)
		req.Header.Set("X-Forwarded-For", client)
		req.Header.Set("Origin", "https://app.example.com")
		resp, reqErr := http.DefaultClient.Do(req)
		require.NoError(t, reqErr)
		return resp
	}

	for i := 0; i < 2; i++ {
		resp := doRequest("203.0.113.7")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
		var echo upstream.EchoResponseData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
		require.NoError(t, resp.Body.Close())
		require.Equal(t, upstream.EchoResponseData{Method: http.MethodGet, Path: "/api/items", Client: "203.0.113.7"}, echo)
	}

	resp := doRequest("203.0.113.7")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, throttle.RejectionBody, string(body))
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = doRequest("198.51.100.1")
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, gw.Throttler.Clients())

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	testutil.RequireStringJSONInResponse(t, resp, `{"components":{"throttle_registry":true}}`)
}

func TestGateway_Units(t *testing.T) {
	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", "server:\n  address: 127.0.0.1:0\n"))
	require.NoError(t, err)
	gw, err := newGateway(cfg, logtest.NewLogger(), gatewayMetrics{})
	require.NoError(t, err)
	require.Len(t, gw.Unit.Units, 1)
	require.False(t, gw.Throttler.EvictionEnabled())

	cfg.ProfServer.Enabled = true
	gw, err = newGateway(cfg, logtest.NewLogger(), gatewayMetrics{})
	require.NoError(t, err)
	require.Len(t, gw.Unit.Units, 2)
	require.IsType(t, &profserver.ProfServer{}, gw.Unit.Units[1])
}
