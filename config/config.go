/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is a section of the gateway configuration that can be filled by Loader.
// SetProviderDefaults is called for every section before any Set, so a section may read the defaults of another one.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections that live under their own key (e.g. "throttle" or "server").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// dataProviderFor scopes dp to the section key prefix if cfg has one.
func dataProviderFor(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// sectionFields returns exported non-nil fields of the struct pointed by obj that implement Config,
// in the order of declaration.
func sectionFields(obj interface{}) []Config {
	val := reflect.ValueOf(obj).Elem()
	typ := val.Type()
	var sections []Config
	for i := 0; i < val.NumField(); i++ {
		if !typ.Field(i).IsExported() {
			continue
		}
		field := val.Field(i)
		switch field.Kind() {
		case reflect.Ptr, reflect.Interface:
			if field.IsNil() {
				continue
			}
		}
		if section, ok := field.Interface().(Config); ok {
			sections = append(sections, section)
		}
	}
	return sections
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every section field of obj (a pointer to struct).
// Nil sections are skipped, so optional components may be left out of the aggregate config.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	for _, section := range sectionFields(obj) {
		section.SetProviderDefaults(dataProviderFor(dp, section))
	}
}

// CallSetForFields calls Set for every section field of obj (a pointer to struct) and stops at the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	for _, section := range sectionFields(obj) {
		if err := section.Set(dataProviderFor(dp, section)); err != nil {
			return err
		}
	}
	return nil
}
