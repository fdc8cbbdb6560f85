/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"

	"github.com/acronis/go-throttlegate/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel     = "level"
	cfgKeyFormat    = "format"
	cfgKeyOutput    = "output"
	cfgKeyNoColor   = "nocolor"
	cfgKeyAddCaller = "addCaller"
	cfgKeyFilePath  = "file.path"

	cfgKeyRotationCompress         = "file.rotation.compress"
	cfgKeyRotationMaxSize          = "file.rotation.maxSize"
	cfgKeyRotationMaxBackups       = "file.rotation.maxBackups"
	cfgKeyRotationMaxAgeDays       = "file.rotation.maxAgeDays"
	cfgKeyRotationLocalTimeInNames = "file.rotation.localTimeInNames"
)

// Rotation defaults and lower bounds.
const (
	DefaultFileRotationMaxSizeBytes = 250 * 1024 * 1024
	DefaultFileRotationMaxBackups   = 10
	MinFileRotationMaxSizeBytes     = 1024 * 1024
	MinFileRotationMaxBackups       = 1
)

// Level is a minimal severity of logged entries.
type Level string

// Supported levels.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is an encoding of log entries.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is a destination of log entries.
type Output string

// Supported outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

// Config is a logging configuration ("log" section by default).
type Config struct {
	Level   Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format  Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output  Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`

	// AddCaller adds package/file:line of the logging call to every entry.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// FileOutputConfig is used when Output is "file".
// Path may contain {{pid}} and {{starttime}} placeholders.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig configures lumberjack. MaxSize is rounded down to whole megabytes.
type FileRotationConfig struct {
	Compress         bool              `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.BytesCount `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int               `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int               `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool              `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ConfigOption configures NewConfig.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix overrides the "log" key prefix.
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
	cfg.Level, cfg.Format, cfg.Output = LevelInfo, FormatJSON, OutputStdout
	cfg.File.Rotation.MaxSize = DefaultFileRotationMaxSizeBytes
	cfg.File.Rotation.MaxBackups = DefaultFileRotationMaxBackups
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))
	dp.SetDefault(cfgKeyRotationMaxSize, config.BytesCount(DefaultFileRotationMaxSizeBytes).String())
	dp.SetDefault(cfgKeyRotationMaxBackups, DefaultFileRotationMaxBackups)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	level, err := dp.GetStringFromSet(cfgKeyLevel,
		[]string{string(LevelDebug), string(LevelInfo), string(LevelWarn), string(LevelError)}, true)
	if err != nil {
		return err
	}
	format, err := dp.GetStringFromSet(cfgKeyFormat, []string{string(FormatJSON), string(FormatText)}, true)
	if err != nil {
		return err
	}
	output, err := dp.GetStringFromSet(cfgKeyOutput,
		[]string{string(OutputStdout), string(OutputStderr), string(OutputFile)}, true)
	if err != nil {
		return err
	}
	c.Level, c.Format, c.Output = Level(level), Format(format), Output(output)

	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}

	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}
	return c.File.Rotation.set(dp)
}

func (r *FileRotationConfig) set(dp config.DataProvider) error {
	var err error
	if r.Compress, err = dp.GetBool(cfgKeyRotationCompress); err != nil {
		return err
	}
	if r.LocalTimeInNames, err = dp.GetBool(cfgKeyRotationLocalTimeInNames); err != nil {
		return err
	}
	if r.MaxSize, err = dp.GetBytesCount(cfgKeyRotationMaxSize); err != nil {
		return err
	}
	if r.MaxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyRotationMaxSize,
			fmt.Errorf("should be >= %s", config.BytesCount(MinFileRotationMaxSizeBytes)))
	}

	bounded := []struct {
		key string
		dst *int
		min int
	}{
		{cfgKeyRotationMaxBackups, &r.MaxBackups, MinFileRotationMaxBackups},
		{cfgKeyRotationMaxAgeDays, &r.MaxAgeDays, 0},
	}
	for _, b := range bounded {
		if *b.dst, err = dp.GetInt(b.key); err != nil {
			return err
		}
		if *b.dst < b.min {
			return dp.WrapKeyErr(b.key, fmt.Errorf("should be >= %d", b.min))
		}
	}
	return nil
}
