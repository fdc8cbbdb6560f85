/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-throttlegate/config"
	"github.com/acronis/go-throttlegate/httpclient"
)

const cfgDefaultKeyPrefix = "upstream"

const (
	cfgKeyURL                    = "url"
	cfgKeyPreserveHost           = "preserveHost"
	cfgKeyTimeoutsDial           = "timeouts.dial"
	cfgKeyTimeoutsResponseHeader = "timeouts.responseHeader"
	cfgKeyHealthCheckPath        = "healthCheck.path"
	cfgKeyHealthCheckTimeout     = "healthCheck.timeout"
	cfgKeyClient                 = "client"
)

// Default values.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultHealthCheckTimeout    = 2 * time.Second
)

// Config represents a configuration of the upstream service.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// URL of the upstream service (e.g. "http://127.0.0.1:9000").
	// Admitted requests are answered by the built-in echo handler if it's empty.
	URL string `mapstructure:"url" yaml:"url" json:"url"`

	// PreserveHost keeps the Host header of the inbound request.
	PreserveHost bool `mapstructure:"preserveHost" yaml:"preserveHost" json:"preserveHost"`

	Timeouts    TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	HealthCheck HealthCheckConfig `mapstructure:"healthCheck" yaml:"healthCheck" json:"healthCheck"`

	// Client configures logging, metrics and retries of the calls to the upstream.
	// Retries are applied only to the health check requests.
	Client httpclient.Config `mapstructure:"client" yaml:"client" json:"client"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig contains timeouts of the connections to the upstream.
type TimeoutsConfig struct {
	Dial           config.TimeDuration `mapstructure:"dial" yaml:"dial" json:"dial"`
	ResponseHeader config.TimeDuration `mapstructure:"responseHeader" yaml:"responseHeader" json:"responseHeader"`
}

// HealthCheckConfig configures probing of the upstream from the /healthz endpoint.
// Upstream is not checked if Path is empty.
type HealthCheckConfig struct {
	Path    string              `mapstructure:"path" yaml:"path" json:"path"`
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Timeouts = TimeoutsConfig{
		Dial:           config.TimeDuration(DefaultDialTimeout),
		ResponseHeader: config.TimeDuration(DefaultResponseHeaderTimeout),
	}
	cfg.HealthCheck.Timeout = config.TimeDuration(DefaultHealthCheckTimeout)
	cfg.Client = *httpclient.NewDefaultConfig()
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the upstream in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeoutsDial, DefaultDialTimeout)
	dp.SetDefault(cfgKeyTimeoutsResponseHeader, DefaultResponseHeaderTimeout)
	dp.SetDefault(cfgKeyHealthCheckTimeout, DefaultHealthCheckTimeout)
	c.Client.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}

// Set sets the upstream configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	if c.URL != "" {
		if _, err = parseURL(c.URL); err != nil {
			return dp.WrapKeyErr(cfgKeyURL, err)
		}
	}
	if c.PreserveHost, err = dp.GetBool(cfgKeyPreserveHost); err != nil {
		return err
	}

	if c.Timeouts.Dial, err = getPositiveDuration(dp, cfgKeyTimeoutsDial); err != nil {
		return err
	}
	if c.Timeouts.ResponseHeader, err = getPositiveDuration(dp, cfgKeyTimeoutsResponseHeader); err != nil {
		return err
	}

	if c.HealthCheck.Path, err = dp.GetString(cfgKeyHealthCheckPath); err != nil {
		return err
	}
	if c.HealthCheck.Timeout, err = getPositiveDuration(dp, cfgKeyHealthCheckTimeout); err != nil {
		return err
	}
	return c.Client.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}

func getPositiveDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be positive"))
	}
	return config.TimeDuration(dur), nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme should be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}
	return u, nil
}
