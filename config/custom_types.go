/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// TimeDuration is a non-negative time duration that can be parsed from JSON, YAML and text.
// Both integers (nanoseconds) and human-readable strings (e.g. "1m30s") are accepted.
// It is used for idle TTLs, intervals and timeouts in configuration structures.
type TimeDuration time.Duration

func parseTimeDuration(s string) (TimeDuration, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return TimeDuration(num), nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %s", s)
	}
	return TimeDuration(dur), nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	parsed, err := parseTimeDuration(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid time duration format: line %d", value.Line)
	}
	parsed, err := parseTimeDuration(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface, which is used by mapstructure.TextUnmarshallerHookFunc.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	parsed, err := parseTimeDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// String returns the human-readable string representation.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes as a human-readable string in JSON.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML encodes as a human-readable string in YAML.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText encodes as a human-readable string in text.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// BytesCount is a size in bytes that can be written in a human-readable form ("250M", "1G", "512K").
// Plain integers are treated as bytes.
type BytesCount uint64

func parseBytesCount(s string) (BytesCount, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return BytesCount(num), nil
	}
	num, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return BytesCount(num), nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (b *BytesCount) UnmarshalJSON(data []byte) error {
	parsed, err := parseBytesCount(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (b *BytesCount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid byte size format: line %d", value.Line)
	}
	parsed, err := parseBytesCount(value.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (b *BytesCount) UnmarshalText(text []byte) error {
	parsed, err := parseBytesCount(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// String returns the size with the largest unit that keeps it readable (e.g. "250M").
func (b BytesCount) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON encodes as a human-readable string in JSON.
func (b BytesCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML encodes as a human-readable string in YAML.
func (b BytesCount) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// MarshalText encodes as a human-readable string in text.
func (b BytesCount) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
