/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cors

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/go-throttlegate/config"
)

const cfgDefaultKeyPrefix = "cors"

const (
	cfgKeyAllowedOrigins   = "allowedOrigins"
	cfgKeyAllowedMethods   = "allowedMethods"
	cfgKeyAllowedHeaders   = "allowedHeaders"
	cfgKeyExposedHeaders   = "exposedHeaders"
	cfgKeyAllowCredentials = "allowCredentials"
	cfgKeyMaxAge           = "maxAge"
)

// Wildcard allows any origin or any header.
const Wildcard = "*"

// DefaultMaxAge is a default time for which the preflight response may be cached by the client.
const DefaultMaxAge = 30 * time.Minute

// DefaultAllowedMethods contains HTTP methods allowed for cross-origin requests by default.
var DefaultAllowedMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
}

// DefaultAllowedHeaders contains request headers allowed for cross-origin requests by default.
var DefaultAllowedHeaders = []string{Wildcard}

var knownMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodHead: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {},
	http.MethodDelete: {}, http.MethodConnect: {}, http.MethodOptions: {}, http.MethodTrace: {},
}

// Config represents a cross-origin resource sharing policy.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// AllowedOrigins contains origins (glob patterns, e.g. "https://*.example.com") allowed to make requests.
	// Empty list denies all cross-origin requests.
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`

	AllowedMethods   []string            `mapstructure:"allowedMethods" yaml:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders   []string            `mapstructure:"allowedHeaders" yaml:"allowedHeaders" json:"allowedHeaders"`
	ExposedHeaders   []string            `mapstructure:"exposedHeaders" yaml:"exposedHeaders" json:"exposedHeaders"`
	AllowCredentials bool                `mapstructure:"allowCredentials" yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           config.TimeDuration `mapstructure:"maxAge" yaml:"maxAge" json:"maxAge"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

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
	cfg.AllowedMethods = append([]string(nil), DefaultAllowedMethods...)
	cfg.AllowedHeaders = append([]string(nil), DefaultAllowedHeaders...)
	cfg.AllowCredentials = true
	cfg.MaxAge = config.TimeDuration(DefaultMaxAge)
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

// SetProviderDefaults sets default configuration values for CORS in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAllowedMethods, DefaultAllowedMethods)
	dp.SetDefault(cfgKeyAllowedHeaders, DefaultAllowedHeaders)
	dp.SetDefault(cfgKeyAllowCredentials, true)
	dp.SetDefault(cfgKeyMaxAge, DefaultMaxAge)
}

// Set sets CORS configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.AllowedOrigins, err = dp.GetStringSlice(cfgKeyAllowedOrigins); err != nil {
		return err
	}
	if c.AllowedMethods, err = dp.GetStringSlice(cfgKeyAllowedMethods); err != nil {
		return err
	}
	if c.AllowedHeaders, err = dp.GetStringSlice(cfgKeyAllowedHeaders); err != nil {
		return err
	}
	if c.ExposedHeaders, err = dp.GetStringSlice(cfgKeyExposedHeaders); err != nil {
		return err
	}
	if c.AllowCredentials, err = dp.GetBool(cfgKeyAllowCredentials); err != nil {
		return err
	}
	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyMaxAge); err != nil {
		return err
	}
	c.MaxAge = config.TimeDuration(dur)

	if key, vErr := c.validate(); vErr != nil {
		return dp.WrapKeyErr(key, vErr)
	}
	return nil
}

// Validate validates configuration.
func (c *Config) Validate() error {
	if key, err := c.validate(); err != nil {
		return config.WrapKeyErr(key, err)
	}
	return nil
}

func (c *Config) validate() (key string, err error) {
	for _, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return cfgKeyAllowedOrigins, fmt.Errorf("origin cannot be empty")
		}
		if origin == Wildcard && c.AllowCredentials {
			return cfgKeyAllowedOrigins, fmt.Errorf(
				"%q cannot be used when allowCredentials is enabled, list origins or use patterns instead", Wildcard)
		}
	}
	for _, method := range c.AllowedMethods {
		if _, ok := knownMethods[strings.ToUpper(method)]; !ok {
			return cfgKeyAllowedMethods, fmt.Errorf("unknown HTTP method %q", method)
		}
	}
	if c.MaxAge < 0 {
		return cfgKeyMaxAge, fmt.Errorf("should be >= 0, got %s", time.Duration(c.MaxAge))
	}
	return "", nil
}
