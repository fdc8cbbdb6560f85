/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// DefaultEnvVarsPrefix is the prefix of environment variables that override file values,
// e.g. THROTTLEGATE_THROTTLE_MAXREQUESTSPERMINUTE for "throttle.maxRequestsPerMinute".
const DefaultEnvVarsPrefix = "throttlegate"

// Loader fills configuration sections from a DataProvider.
type Loader struct {
	DataProvider DataProvider
}

// LoaderOption configures NewDefaultLoader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	envVarsPrefix string
}

// WithEnvVarsPrefix overrides DefaultEnvVarsPrefix.
func WithEnvVarsPrefix(prefix string) LoaderOption {
	return func(o *loaderOptions) {
		o.envVarsPrefix = prefix
	}
}

// NewDefaultLoader creates a Loader over ViperAdapter that also reads environment variables.
func NewDefaultLoader(options ...LoaderOption) *Loader {
	opts := loaderOptions{envVarsPrefix: DefaultEnvVarsPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	va := NewViperAdapter()
	va.UseEnvVars(opts.envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader over the given DataProvider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// LoadFromPath is LoadFromFile with the data type detected by DataTypeFromPath.
func (l *Loader) LoadFromPath(path string, cfg Config, cfgs ...Config) error {
	dataType, err := DataTypeFromPath(path)
	if err != nil {
		return err
	}
	return l.LoadFromFile(path, dataType, cfg, cfgs...)
}

// LoadFromFile reads the file and fills the sections.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader reads the data and fills the sections.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(dataProviderFor(l.DataProvider, cfg))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(dataProviderFor(l.DataProvider, cfg)); err != nil {
			return err
		}
	}
	return nil
}
