/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/acronis/go-throttlegate/config"
	"github.com/acronis/go-throttlegate/retry"
)

const (
	cfgKeyLoggingMode                 = "logging.mode"
	cfgKeyLoggingSlowRequestThreshold = "logging.slowRequestThreshold"
	cfgKeyMetricsEnabled              = "metrics.enabled"
	cfgKeyRetriesEnabled              = "retries.enabled"
	cfgKeyRetriesMaxAttempts          = "retries.maxAttempts"
	cfgKeyRetriesPolicy               = "retries.policy"
	cfgKeyRetriesInterval             = "retries.interval"
)

// Retry policies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

// Default values.
const (
	DefaultLoggingMode          = LoggingModeFailed
	DefaultSlowRequestThreshold = time.Second
	DefaultRetriesMaxAttempts   = 2
	DefaultRetriesPolicy        = RetryPolicyExponential
	DefaultRetriesInterval      = 100 * time.Millisecond
)

// Config is a configuration of the HTTP client used for calls to the upstream.
// It's a nested section, so it has no key prefix of its own.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Retries RetriesConfig `mapstructure:"retries" yaml:"retries" json:"retries"`
}

var _ config.Config = (*Config)(nil)

// LoggingConfig configures logging of the client requests.
type LoggingConfig struct {
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`

	// SlowRequestThreshold makes requests that take longer be logged even in the "failed" mode.
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// MetricsConfig configures collecting of the client requests metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// RetriesConfig configures retrying of the idempotent client requests.
type RetriesConfig struct {
	Enabled     bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Policy      string              `mapstructure:"policy" yaml:"policy" json:"policy"`
	Interval    config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// GetPolicy returns the backoff policy for the configured strategy.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	if c.Policy == RetryPolicyConstant {
		return retry.NewConstantBackoffPolicy(time.Duration(c.Interval), 0)
	}
	return retry.NewExponentialBackoffPolicy(time.Duration(c.Interval), 0)
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Mode:                 DefaultLoggingMode,
			SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold),
		},
		Metrics: MetricsConfig{Enabled: true},
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: DefaultRetriesMaxAttempts,
			Policy:      DefaultRetriesPolicy,
			Interval:    config.TimeDuration(DefaultRetriesInterval),
		},
	}
}

// SetProviderDefaults sets default configuration values for the HTTP client in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLoggingMode, string(DefaultLoggingMode))
	dp.SetDefault(cfgKeyLoggingSlowRequestThreshold, DefaultSlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, true)
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesPolicy, DefaultRetriesPolicy)
	dp.SetDefault(cfgKeyRetriesInterval, DefaultRetriesInterval)
}

// Set sets the HTTP client configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.setLogging(dp); err != nil {
		return err
	}

	var err error
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}

	return c.setRetries(dp)
}

func (c *Config) setLogging(dp config.DataProvider) error {
	mode, err := dp.GetStringFromSet(cfgKeyLoggingMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, true)
	if err != nil {
		return err
	}
	c.Logging.Mode = LoggingMode(mode)

	threshold, err := dp.GetDuration(cfgKeyLoggingSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggingSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	c.Logging.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

func (c *Config) setRetries(dp config.DataProvider) error {
	var err error
	if c.Retries.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if c.Retries.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.Retries.Enabled && c.Retries.MaxAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("should be >= 1 when retries are enabled"))
	}
	if c.Retries.Policy, err = dp.GetStringFromSet(
		cfgKeyRetriesPolicy, []string{RetryPolicyExponential, RetryPolicyConstant}, true); err != nil {
		return err
	}
	interval, err := dp.GetDuration(cfgKeyRetriesInterval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetriesInterval, fmt.Errorf("must be positive"))
	}
	c.Retries.Interval = config.TimeDuration(interval)
	return nil
}
