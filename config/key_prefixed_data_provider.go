/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider exposes a nested section of another DataProvider.
// Keys are joined with the prefix by a dot, so errors returned by its getters carry the full key.
type KeyPrefixedDataProvider struct {
	delegate  DataProvider
	keyPrefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider returns a view of delegate restricted to the keyPrefix section.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{delegate: delegate, keyPrefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) makeKey(key string) string {
	return strings.Trim(p.keyPrefix+"."+key, ".")
}

// UseEnvVars is passed to the underlying provider as is.
func (p *KeyPrefixedDataProvider) UseEnvVars(prefix string) {
	p.delegate.UseEnvVars(prefix)
}

// Set implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.delegate.Set(p.makeKey(key), value)
}

// SetDefault implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.delegate.SetDefault(p.makeKey(key), value)
}

// IsSet implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) IsSet(key string) bool {
	return p.delegate.IsSet(p.makeKey(key))
}

// Get implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) Get(key string) interface{} {
	return p.delegate.Get(p.makeKey(key))
}

// SetFromFile is passed to the underlying provider as is.
func (p *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return p.delegate.SetFromFile(path, dataType)
}

// SetFromReader is passed to the underlying provider as is.
func (p *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return p.delegate.SetFromReader(reader, dataType)
}

// GetInt implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.delegate.GetInt(p.makeKey(key))
}

// GetString implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.delegate.GetString(p.makeKey(key))
}

// GetBool implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.delegate.GetBool(p.makeKey(key))
}

// GetStringSlice implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetStringSlice(key string) ([]string, error) {
	return p.delegate.GetStringSlice(p.makeKey(key))
}

// GetStringFromSet implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.delegate.GetStringFromSet(p.makeKey(key), set, ignoreCase)
}

// GetDuration implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.delegate.GetDuration(p.makeKey(key))
}

// GetBytesCount implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetBytesCount(key string) (BytesCount, error) {
	return p.delegate.GetBytesCount(p.makeKey(key))
}

// GetStringMapString implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) GetStringMapString(key string) (map[string]string, error) {
	return p.delegate.GetStringMapString(p.makeKey(key))
}

// Unmarshal decodes the whole prefixed section into rawVal.
func (p *KeyPrefixedDataProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.keyPrefix, rawVal, opts...)
}

// UnmarshalKey implements DataProvider for the prefixed key.
func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.makeKey(key), rawVal, opts...)
}

// WrapKeyErr reports err for the full (prefixed) key.
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return p.delegate.WrapKeyErr(p.makeKey(key), err)
}
