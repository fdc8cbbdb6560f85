/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-throttlegate/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress        = "address"
	cfgKeyUnixSocketPath = "unixSocketPath"

	cfgKeyTLSEnabled = "tls.enabled"
	cfgKeyTLSCert    = "tls.cert"
	cfgKeyTLSKey     = "tls.key"

	cfgKeyTimeoutsWrite      = "timeouts.write"
	cfgKeyTimeoutsRead       = "timeouts.read"
	cfgKeyTimeoutsReadHeader = "timeouts.readHeader"
	cfgKeyTimeoutsIdle       = "timeouts.idle"
	cfgKeyTimeoutsShutdown   = "timeouts.shutdown"

	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// Default values.
const (
	DefaultAddress              = ":8080"
	DefaultWriteTimeout         = time.Minute
	DefaultReadTimeout          = 15 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultIdleTimeout          = time.Minute
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultSlowRequestThreshold = time.Second
)

// Config is a configuration of the gateway HTTP server ("server" section by default).
type Config struct {
	// Address is a TCP address to listen on. Port 0 picks a free port (see HTTPServer.GetPort).
	Address string `mapstructure:"address" yaml:"address" json:"address"`

	// UnixSocketPath makes the server listen on a unix socket instead of Address.
	UnixSocketPath string `mapstructure:"unixSocketPath" yaml:"unixSocketPath" json:"unixSocketPath"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig is mapped to the http.Server timeouts. Shutdown limits the graceful stop.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LogConfig configures the access log.
// RequestHeaders are logged as "req_header_<name>" fields. ExcludedEndpoints are logged only when they fail.
type LogConfig struct {
	RequestStart           bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TLSConfig enables HTTPS with the certificate and key files.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

// ConfigOption configures NewConfig.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix overrides the "server" key prefix.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a Config equal to what config.Loader produces from empty input.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = DefaultAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(DefaultWriteTimeout),
		Read:       config.TimeDuration(DefaultReadTimeout),
		ReadHeader: config.TimeDuration(DefaultReadHeaderTimeout),
		Idle:       config.TimeDuration(DefaultIdleTimeout),
		Shutdown:   config.TimeDuration(DefaultShutdownTimeout),
	}
	cfg.Log.SlowRequestThreshold = config.TimeDuration(DefaultSlowRequestThreshold)
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

func (c *Config) durations() []struct {
	key string
	dst *config.TimeDuration
	def time.Duration
} {
	return []struct {
		key string
		dst *config.TimeDuration
		def time.Duration
	}{
		{cfgKeyTimeoutsWrite, &c.Timeouts.Write, DefaultWriteTimeout},
		{cfgKeyTimeoutsRead, &c.Timeouts.Read, DefaultReadTimeout},
		{cfgKeyTimeoutsReadHeader, &c.Timeouts.ReadHeader, DefaultReadHeaderTimeout},
		{cfgKeyTimeoutsIdle, &c.Timeouts.Idle, DefaultIdleTimeout},
		{cfgKeyTimeoutsShutdown, &c.Timeouts.Shutdown, DefaultShutdownTimeout},
		{cfgKeyLogSlowRequestThreshold, &c.Log.SlowRequestThreshold, DefaultSlowRequestThreshold},
	}
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	for _, d := range c.durations() {
		dp.SetDefault(d.key, d.def)
	}
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.UnixSocketPath, err = dp.GetString(cfgKeyUnixSocketPath); err != nil {
		return err
	}
	if c.Address == "" && c.UnixSocketPath == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("either address or unixSocketPath should be set"))
	}

	if err = c.setTLS(dp); err != nil {
		return err
	}

	for _, d := range c.durations() {
		val, dErr := dp.GetDuration(d.key)
		if dErr != nil {
			return dErr
		}
		if val < 0 {
			return dp.WrapKeyErr(d.key, fmt.Errorf("cannot be negative"))
		}
		*d.dst = config.TimeDuration(val)
	}

	return c.setLog(dp)
}

func (c *Config) setTLS(dp config.DataProvider) error {
	var err error
	if c.TLS.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if c.TLS.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if c.TLS.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if c.TLS.Enabled && (c.TLS.Certificate == "" || c.TLS.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) error {
	var err error
	if c.Log.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if c.Log.AddRequestInfoToLogger, err = dp.GetBool(cfgKeyLogAddRequestInfo); err != nil {
		return err
	}
	if c.Log.RequestHeaders, err = dp.GetStringSlice(cfgKeyLogRequestHeaders); err != nil {
		return err
	}
	c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoints)
	return err
}
