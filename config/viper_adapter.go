/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter implements DataProvider on top of spf13/viper. Values are converted with spf13/cast,
// so conversion errors are reported with the key they belong to.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates ViperAdapter with its own viper instance.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars enables the ability to use environment variables for configuration parameters.
// Prefix defines what environment variables will be looked, and key dots are replaced with underscores.
// E.g., with "throttlegate" prefix, "throttle.maxRequestsPerMinute" is read from THROTTLEGATE_THROTTLE_MAXREQUESTSPERMINUTE.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// Set sets the value for the key in the override register.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via config or ENV.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// IsSet checks to see if the key has been set in any of the data locations.
// IsSet is case-insensitive for a key.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get retrieves any value given the key to use.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// SetFromFile loads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader loads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// castValue converts the value of the key with the cast function.
// Missing keys produce the zero value of T unless allowNil is false.
func castValue[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error), allowNil bool) (T, error) {
	val := va.Get(key)
	if val == nil && allowNil {
		var zero T
		return zero, nil
	}
	res, err := castFn(val)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetInt implements DataProvider.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castValue(va, key, cast.ToIntE, false)
}

// GetString implements DataProvider.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return castValue(va, key, cast.ToStringE, false)
}

// GetBool implements DataProvider.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castValue(va, key, cast.ToBoolE, false)
}

// GetStringSlice implements DataProvider.
// A comma-separated string (e.g. from an environment variable) is split into elements.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	if str, ok := va.Get(key).(string); ok {
		var res []string
		for _, s := range strings.Split(str, ",") {
			if s = strings.TrimSpace(s); s != "" {
				res = append(res, s)
			}
		}
		return res, nil
	}
	return castValue(va, key, cast.ToStringSliceE, true)
}

// GetStringFromSet implements DataProvider. The value is returned as it's spelled in the set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, candidate := range set {
		if str == candidate || (ignoreCase && strings.EqualFold(str, candidate)) {
			return candidate, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration implements DataProvider. Plain numbers are treated as nanoseconds.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castValue(va, key, cast.ToDurationE, true)
}

// GetBytesCount implements DataProvider. Strings are parsed as human-readable sizes ("250M"),
// numbers are treated as bytes.
func (va *ViperAdapter) GetBytesCount(key string) (BytesCount, error) {
	return castValue(va, key, func(val interface{}) (BytesCount, error) {
		if str, ok := val.(string); ok {
			return parseBytesCount(str)
		}
		num, err := cast.ToInt64E(val)
		if err != nil {
			return 0, err
		}
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return BytesCount(num), nil
	}, true)
}

// GetStringMapString implements DataProvider. A missing key gives an empty map.
func (va *ViperAdapter) GetStringMapString(key string) (map[string]string, error) {
	res, err := castValue(va, key, cast.ToStringMapStringE, true)
	if err == nil && res == nil {
		res = make(map[string]string)
	}
	return res, err
}

// Unmarshal unmarshals the config into a Struct.
func (va *ViperAdapter) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return va.viper.Unmarshal(rawVal, convertDecoderOpts(opts)...)
}

// UnmarshalKey takes a single key and unmarshals it into a Struct.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, convertDecoderOpts(opts)...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func convertDecoderOpts(opts []DecoderConfigOption) []viper.DecoderConfigOption {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return options
}
