/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-throttlegate/config"
)

type appConfig struct {
	Server *Config `mapstructure:"server" json:"server" yaml:"server"`
}

func TestConfig(t *testing.T) {
	expectedCfg := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Address = "127.0.0.1:8088"
		cfg.Timeouts.Write = config.TimeDuration(time.Hour)
		cfg.Timeouts.Read = config.TimeDuration(7 * time.Minute)
		cfg.Timeouts.ReadHeader = config.TimeDuration(time.Minute)
		cfg.Timeouts.Idle = config.TimeDuration(20 * time.Minute)
		cfg.Timeouts.Shutdown = config.TimeDuration(30 * time.Second)
		cfg.Log.RequestStart = true
		cfg.Log.RequestHeaders = []string{"X-Forwarded-For", "Origin"}
		cfg.Log.ExcludedEndpoints = []string{"/healthz"}
		cfg.Log.AddRequestInfoToLogger = true
		cfg.Log.SlowRequestThreshold = config.TimeDuration(2 * time.Second)
		cfg.TLS = TLSConfig{Enabled: true, Certificate: "/etc/gate/cert.pem", Key: "/etc/gate/key.pem"}
		return cfg
	}

	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
server:
  address: "127.0.0.1:8088"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  log:
    requestStart: true
    requestHeaders: [X-Forwarded-For, Origin]
    excludedEndpoints: [/healthz]
    addRequestInfo: true
    slowRequestThreshold: 2s
  tls:
    enabled: true
    cert: /etc/gate/cert.pem
    key: /etc/gate/key.pem
`,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
  "server": {
    "address": "127.0.0.1:8088",
    "timeouts": {"write": "1h", "read": "7m", "readHeader": "1m", "idle": "20m", "shutdown": "30s"},
    "log": {
      "requestStart": true,
      "requestHeaders": ["X-Forwarded-For", "Origin"],
      "excludedEndpoints": ["/healthz"],
      "addRequestInfo": true,
      "slowRequestThreshold": "2s"
    },
    "tls": {"enabled": true, "cert": "/etc/gate/cert.pem", "key": "/etc/gate/key.pem"}
  }
}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// config.Loader
			cfg := NewConfig()
			err := config.NewDefaultLoader().LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, cfg)
			require.NoError(t, err)
			require.Equal(t, expectedCfg(), cfg)

			// direct unmarshalling on top of defaults
			appCfg := appConfig{Server: NewDefaultConfig()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
			}
			require.Equal(t, expectedCfg(), appCfg.Server)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	var cfg *Config

	// Empty config, all defaults for the data provider should be used
	cfg = NewConfig()
	require.NoError(t, config.NewDefaultLoader().LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// viper.Unmarshal
	cfg = NewDefaultConfig()
	vpr := viper.New()
	vpr.SetConfigType("yaml")
	require.NoError(t, vpr.Unmarshal(&cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// yaml.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(""), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// json.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("THROTTLEGATE_SERVER_ADDRESS", ":9090")
	t.Setenv("THROTTLEGATE_SERVER_LOG_REQUESTHEADERS", "X-Request-ID, User-Agent")

	cfg := NewConfig()
	err := config.NewDefaultLoader().LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Address)
	require.Equal(t, []string{"X-Request-ID", "User-Agent"}, cfg.Log.RequestHeaders)
}

func TestWithKeyPrefix(t *testing.T) {
	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
gateway:
  address: "127.0.0.1:9999"
`
		expectedCfg := NewDefaultConfig(WithKeyPrefix("gateway"))
		expectedCfg.Address = "127.0.0.1:9999"

		cfg := NewConfig(WithKeyPrefix("gateway"))
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, expectedCfg, cfg)
	})

	t.Run("default key prefix, empty struct initialization", func(t *testing.T) {
		cfgData := `
server:
  address: "127.0.0.1:9999"
`
		cfg := &Config{}
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9999", cfg.Address)
	})
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name: "error, invalid address",
			yamlData: `
server:
  address: []
`,
			expectedErrMsg: `server.address: unable to cast`,
		},
		{
			name: "error, neither address nor unix socket",
			yamlData: `
server:
  address: ""
`,
			expectedErrMsg: `server.address: either address or unixSocketPath should be set`,
		},
		{
			name: "error, tls without key",
			yamlData: `
server:
  tls:
    enabled: true
    cert: /etc/gate/cert.pem
`,
			expectedErrMsg: `server.tls.key: both cert and key should be set`,
		},
		{
			name: "error, invalid timeout",
			yamlData: `
server:
  timeouts:
    write: forever
`,
			expectedErrMsg: `server.timeouts.write: `,
		},
		{
			name: "error, negative slow request threshold",
			yamlData: `
server:
  log:
    slowRequestThreshold: -1s
`,
			expectedErrMsg: `server.log.slowRequestThreshold: cannot be negative`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.expectedErrMsg)
		})
	}
}
