/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/config"
	"github.com/acronis/go-throttlegate/retry"
)

type clientSection struct {
	prefix string
	cfg    *Config
}

func (s *clientSection) SetProviderDefaults(dp config.DataProvider) {
	s.cfg.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, s.prefix))
}

func (s *clientSection) Set(dp config.DataProvider) error {
	return s.cfg.Set(config.NewKeyPrefixedDataProvider(dp, s.prefix))
}

func loadConfig(t *testing.T, cfgData string) (*Config, error) {
	t.Helper()
	section := &clientSection{prefix: "client", cfg: &Config{}}
	err := config.NewDefaultLoader().LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, section)
	return section.cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(t, "")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, LoggingModeFailed, cfg.Logging.Mode)
	require.True(t, cfg.Metrics.Enabled)
	require.True(t, cfg.Retries.Enabled)
	require.Equal(t, DefaultRetriesMaxAttempts, cfg.Retries.MaxAttempts)
}

func TestConfig_Load(t *testing.T) {
	cfg, err := loadConfig(t, `
client:
  logging:
    mode: ALL
    slowRequestThreshold: 250ms
  metrics:
    enabled: false
  retries:
    enabled: true
    maxAttempts: 5
    policy: constant
    interval: 2s
`)
	require.NoError(t, err)
	require.Equal(t, &Config{
		Logging: LoggingConfig{Mode: LoggingModeAll, SlowRequestThreshold: config.TimeDuration(250 * time.Millisecond)},
		Metrics: MetricsConfig{Enabled: false},
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Policy:      RetryPolicyConstant,
			Interval:    config.TimeDuration(2 * time.Second),
		},
	}, cfg)
	require.Equal(t, retry.NewConstantBackoffPolicy(2*time.Second, 0), cfg.Retries.GetPolicy())
}

func TestConfig_RetriesDisabled(t *testing.T) {
	cfg, err := loadConfig(t, `
client:
  retries:
    enabled: false
    maxAttempts: 0
`)
	require.NoError(t, err)
	require.False(t, cfg.Retries.Enabled)
	require.Equal(t, retry.NewExponentialBackoffPolicy(DefaultRetriesInterval, 0), cfg.Retries.GetPolicy())
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "unknown logging mode",
			cfgData: "client:\n  logging:\n    mode: verbose\n",
			wantErr: `client.logging.mode: unknown value "verbose", should be one of [none all failed]`,
		},
		{
			name:    "negative slow request threshold",
			cfgData: "client:\n  logging:\n    slowRequestThreshold: -1s\n",
			wantErr: "client.logging.slowRequestThreshold: cannot be negative",
		},
		{
			name:    "zero max attempts",
			cfgData: "client:\n  retries:\n    maxAttempts: 0\n",
			wantErr: "client.retries.maxAttempts: should be >= 1 when retries are enabled",
		},
		{
			name:    "unknown policy",
			cfgData: "client:\n  retries:\n    policy: linear\n",
			wantErr: `client.retries.policy: unknown value "linear", should be one of [exponential constant]`,
		},
		{
			name:    "zero interval",
			cfgData: "client:\n  retries:\n    interval: 0s\n",
			wantErr: "client.retries.interval: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.cfgData)
			require.EqualError(t, err, tt.wantErr)
		})
	}
}
