/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/require"
)

const testGatewayYAML = `
server:
  address: ":8080"
throttle:
  maxRequestsPerMinute: 120
  alg: Token_Bucket
  excludedPaths:
    - /healthz
    - /metrics
  registry:
    idleTTL: 10m
  tags:
    team: edge
    env: prod
cors:
  allowedOrigins: "https://a.example.com, https://b.example.com"
`

func newTestViperAdapter(t *testing.T) *ViperAdapter {
	t.Helper()
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testGatewayYAML), DataTypeYAML))
	return va
}

func TestViperAdapter_Getters(t *testing.T) {
	va := newTestViperAdapter(t)

	addr, err := va.GetString("server.address")
	require.NoError(t, err)
	require.Equal(t, ":8080", addr)

	maxReqs, err := va.GetInt("throttle.maxRequestsPerMinute")
	require.NoError(t, err)
	require.Equal(t, 120, maxReqs)

	_, err = va.GetInt("throttle.excludedPaths")
	require.ErrorContains(t, err, "throttle.excludedPaths: ")

	dryRun, err := va.GetBool("throttle.dryRun")
	require.NoError(t, err)
	require.False(t, dryRun)

	idleTTL, err := va.GetDuration("throttle.registry.idleTTL")
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, idleTTL)

	cleanup, err := va.GetDuration("throttle.registry.cleanupInterval")
	require.NoError(t, err)
	require.Zero(t, cleanup)

	_, err = va.GetDuration("server.address")
	require.ErrorContains(t, err, "server.address: ")

	tags, err := va.GetStringMapString("throttle.tags")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"team": "edge", "env": "prod"}, tags)

	empty, err := va.GetStringMapString("throttle.absent")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestViperAdapter_GetBytesCount(t *testing.T) {
	va := NewViperAdapter()
	va.Set("log.file.rotation.maxSize", "100M")
	va.Set("log.file.rotation.rawSize", 2048)
	va.Set("log.file.rotation.negative", -1)
	va.Set("log.file.rotation.invalid", "big")

	size, err := va.GetBytesCount("log.file.rotation.maxSize")
	require.NoError(t, err)
	require.Equal(t, BytesCount(100*1024*1024), size)

	size, err = va.GetBytesCount("log.file.rotation.rawSize")
	require.NoError(t, err)
	require.Equal(t, BytesCount(2048), size)

	size, err = va.GetBytesCount("log.file.rotation.absent")
	require.NoError(t, err)
	require.Zero(t, size)

	_, err = va.GetBytesCount("log.file.rotation.negative")
	require.EqualError(t, err, "log.file.rotation.negative: negative value is not allowed: -1")

	_, err = va.GetBytesCount("log.file.rotation.invalid")
	require.ErrorContains(t, err, "log.file.rotation.invalid: invalid byte size format (big)")

	kp := NewKeyPrefixedDataProvider(va, "log.file")
	size, err = kp.GetBytesCount("rotation.maxSize")
	require.NoError(t, err)
	require.Equal(t, BytesCount(100*1024*1024), size)
}

func TestViperAdapter_GetStringSlice(t *testing.T) {
	va := newTestViperAdapter(t)

	paths, err := va.GetStringSlice("throttle.excludedPaths")
	require.NoError(t, err)
	require.Equal(t, []string{"/healthz", "/metrics"}, paths)

	origins, err := va.GetStringSlice("cors.allowedOrigins")
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, origins)

	absent, err := va.GetStringSlice("cors.exposedHeaders")
	require.NoError(t, err)
	require.Nil(t, absent)
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := newTestViperAdapter(t)
	algs := []string{"token_bucket", "leaky_bucket", "sliding_window"}

	alg, err := va.GetStringFromSet("throttle.alg", algs, true)
	require.NoError(t, err)
	require.Equal(t, "token_bucket", alg)

	_, err = va.GetStringFromSet("throttle.alg", algs, false)
	require.EqualError(t, err,
		`throttle.alg: unknown value "Token_Bucket", should be one of [token_bucket leaky_bucket sliding_window]`)
}

func TestViperAdapter_UseEnvVars(t *testing.T) {
	t.Setenv("GW_THROTTLE_DRYRUN", "true")
	t.Setenv("GW_CORS_ALLOWEDORIGINS", "https://c.example.com")
	va := newTestViperAdapter(t)
	va.UseEnvVars("gw")

	dryRun, err := va.GetBool("throttle.dryRun")
	require.NoError(t, err)
	require.True(t, dryRun)

	origins, err := va.GetStringSlice("cors.allowedOrigins")
	require.NoError(t, err)
	require.Equal(t, []string{"https://c.example.com"}, origins)
}

func TestViperAdapter_Unmarshal(t *testing.T) {
	type registryCfg struct {
		IdleTTL TimeDuration `mapstructure:"idleTTL"`
	}
	type throttleCfg struct {
		MaxRequestsPerMinute int         `mapstructure:"maxRequestsPerMinute"`
		Registry             registryCfg `mapstructure:"registry"`
	}
	va := newTestViperAdapter(t)
	decodeHook := func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
	}

	var cfg throttleCfg
	require.NoError(t, va.UnmarshalKey("throttle", &cfg, decodeHook))
	require.Equal(t, throttleCfg{MaxRequestsPerMinute: 120, Registry: registryCfg{IdleTTL: TimeDuration(10 * time.Minute)}}, cfg)

	var prefixedCfg throttleCfg
	require.NoError(t, NewKeyPrefixedDataProvider(va, "throttle").Unmarshal(&prefixedCfg, decodeHook))
	require.Equal(t, cfg, prefixedCfg)
}
