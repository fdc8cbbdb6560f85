/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/acronis/go-throttlegate/config"
)

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyMaxRequestsPerMinute    = "maxRequestsPerMinute"
	cfgKeyAlg                     = "alg"
	cfgKeyEngine                  = "engine"
	cfgKeyClientKeyHeader         = "clientKey.header"
	cfgKeyClientKeyTrustHeader    = "clientKey.trustHeader"
	cfgKeyRegistryShards          = "registry.shards"
	cfgKeyRegistryIdleTTL         = "registry.idleTTL"
	cfgKeyRegistryCleanupInterval = "registry.cleanupInterval"
	cfgKeyExcludedPaths           = "excludedPaths"
	cfgKeyDryRun                  = "dryRun"
	cfgKeyRetryAfter              = "retryAfter"
)

// Rate-limiting algorithms.
const (
	AlgTokenBucket   = "token_bucket"
	AlgLeakyBucket   = "leaky_bucket"
	AlgSlidingWindow = "sliding_window"
)

// Token bucket engines.
const (
	EngineNative = "native"
	EngineXRate  = "xrate"
)

// Default values.
const (
	DefaultMaxRequestsPerMinute    = 60
	DefaultClientKeyHeader         = "X-Forwarded-For"
	DefaultRegistryShards          = 32
	DefaultRegistryCleanupInterval = time.Minute
	MinRegistryIdleTTL             = time.Minute
)

// DefaultExcludedPaths contains system endpoints that are never throttled by default.
var DefaultExcludedPaths = []string{"/healthz", "/metrics"}

// Config represents a configuration for per-client throttling of HTTP requests.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxRequestsPerMinute is a capacity of the client's bucket
	// and the number of tokens refilled during one minute.
	MaxRequestsPerMinute int `mapstructure:"maxRequestsPerMinute" yaml:"maxRequestsPerMinute" json:"maxRequestsPerMinute"`

	// Alg is a rate-limiting algorithm (token_bucket, leaky_bucket or sliding_window).
	Alg string `mapstructure:"alg" yaml:"alg" json:"alg"`

	// Engine selects the token bucket implementation (native or xrate). Matters only for token_bucket.
	Engine string `mapstructure:"engine" yaml:"engine" json:"engine"`

	ClientKey ClientKeyConfig `mapstructure:"clientKey" yaml:"clientKey" json:"clientKey"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry" json:"registry"`

	// ExcludedPaths contains URL paths (exact match) that are never throttled.
	ExcludedPaths []string `mapstructure:"excludedPaths" yaml:"excludedPaths" json:"excludedPaths"`

	// DryRun enables the mode in which rejected requests are only logged and counted, but still served.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// RetryAfter enables the Retry-After header in rejection responses.
	RetryAfter bool `mapstructure:"retryAfter" yaml:"retryAfter" json:"retryAfter"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ClientKeyConfig represents a configuration of the client identification.
type ClientKeyConfig struct {
	// Header is a name of the HTTP request header which raw value identifies the client.
	Header string `mapstructure:"header" yaml:"header" json:"header"`

	// TrustHeader determines whether the header is used at all.
	// If false, clients are always identified by the remote address.
	TrustHeader bool `mapstructure:"trustHeader" yaml:"trustHeader" json:"trustHeader"`
}

// RegistryConfig represents a configuration of the in-memory storage of the clients' buckets.
type RegistryConfig struct {
	Shards int `mapstructure:"shards" yaml:"shards" json:"shards"`

	// IdleTTL is a time after which an idle client with a refilled bucket is forgotten. Zero disables eviction.
	IdleTTL config.TimeDuration `mapstructure:"idleTTL" yaml:"idleTTL" json:"idleTTL"`

	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
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
	cfg.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	cfg.Alg = AlgTokenBucket
	cfg.Engine = EngineNative
	cfg.ClientKey = ClientKeyConfig{Header: DefaultClientKeyHeader, TrustHeader: true}
	cfg.Registry = RegistryConfig{
		Shards:          DefaultRegistryShards,
		CleanupInterval: config.TimeDuration(DefaultRegistryCleanupInterval),
	}
	cfg.ExcludedPaths = append([]string(nil), DefaultExcludedPaths...)
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

// SetProviderDefaults sets default configuration values for throttling in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxRequestsPerMinute, DefaultMaxRequestsPerMinute)
	dp.SetDefault(cfgKeyAlg, AlgTokenBucket)
	dp.SetDefault(cfgKeyEngine, EngineNative)
	dp.SetDefault(cfgKeyClientKeyHeader, DefaultClientKeyHeader)
	dp.SetDefault(cfgKeyClientKeyTrustHeader, true)
	dp.SetDefault(cfgKeyRegistryShards, DefaultRegistryShards)
	dp.SetDefault(cfgKeyRegistryIdleTTL, time.Duration(0))
	dp.SetDefault(cfgKeyRegistryCleanupInterval, DefaultRegistryCleanupInterval)
	dp.SetDefault(cfgKeyExcludedPaths, DefaultExcludedPaths)
	dp.SetDefault(cfgKeyDryRun, false)
	dp.SetDefault(cfgKeyRetryAfter, false)
}

// Set sets throttling configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxRequestsPerMinute, err = dp.GetInt(cfgKeyMaxRequestsPerMinute); err != nil {
		return err
	}
	if c.Alg, err = dp.GetStringFromSet(
		cfgKeyAlg, []string{AlgTokenBucket, AlgLeakyBucket, AlgSlidingWindow}, false,
	); err != nil {
		return err
	}
	if c.Engine, err = dp.GetStringFromSet(cfgKeyEngine, []string{EngineNative, EngineXRate}, false); err != nil {
		return err
	}

	if c.ClientKey.Header, err = dp.GetString(cfgKeyClientKeyHeader); err != nil {
		return err
	}
	if c.ClientKey.TrustHeader, err = dp.GetBool(cfgKeyClientKeyTrustHeader); err != nil {
		return err
	}

	if c.Registry.Shards, err = dp.GetInt(cfgKeyRegistryShards); err != nil {
		return err
	}
	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyRegistryIdleTTL); err != nil {
		return err
	}
	c.Registry.IdleTTL = config.TimeDuration(dur)
	if dur, err = dp.GetDuration(cfgKeyRegistryCleanupInterval); err != nil {
		return err
	}
	c.Registry.CleanupInterval = config.TimeDuration(dur)

	if c.ExcludedPaths, err = dp.GetStringSlice(cfgKeyExcludedPaths); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}
	if c.RetryAfter, err = dp.GetBool(cfgKeyRetryAfter); err != nil {
		return err
	}

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
	if c.MaxRequestsPerMinute < 1 {
		return cfgKeyMaxRequestsPerMinute, fmt.Errorf("should be >= 1, got %d", c.MaxRequestsPerMinute)
	}
	switch c.Alg {
	case "", AlgTokenBucket, AlgLeakyBucket, AlgSlidingWindow:
	default:
		return cfgKeyAlg, fmt.Errorf("unknown rate limit alg %q", c.Alg)
	}
	switch c.Engine {
	case "", EngineNative, EngineXRate:
	default:
		return cfgKeyEngine, fmt.Errorf("unknown token bucket engine %q", c.Engine)
	}
	if c.ClientKey.TrustHeader && strings.TrimSpace(c.ClientKey.Header) == "" {
		return cfgKeyClientKeyHeader, fmt.Errorf("header name should be specified when trustHeader is enabled")
	}
	if c.Registry.Shards < 0 || (c.Registry.Shards > 0 && bits.OnesCount(uint(c.Registry.Shards)) != 1) {
		return cfgKeyRegistryShards, fmt.Errorf("should be a power of two, got %d", c.Registry.Shards)
	}
	idleTTL := time.Duration(c.Registry.IdleTTL)
	if idleTTL < 0 || (idleTTL > 0 && idleTTL < MinRegistryIdleTTL) {
		return cfgKeyRegistryIdleTTL, fmt.Errorf("should be 0 (disabled) or >= %s, got %s", MinRegistryIdleTTL, idleTTL)
	}
	if idleTTL > 0 && c.Registry.CleanupInterval <= 0 {
		return cfgKeyRegistryCleanupInterval, fmt.Errorf("should be positive when idleTTL is set, got %s",
			time.Duration(c.Registry.CleanupInterval))
	}
	for _, p := range c.ExcludedPaths {
		if !strings.HasPrefix(p, "/") {
			return cfgKeyExcludedPaths, fmt.Errorf("path %q should start with %q", p, "/")
		}
	}
	return "", nil
}
