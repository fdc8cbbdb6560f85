/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"time"

	"github.com/ssgreg/logf"
)

// Field is a typed key-value pair attached to a log entry.
type Field = logf.Field

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Bytes    = logf.Bytes
	Int      = logf.Int
	Int64    = logf.Int64
	Float64  = logf.Float64
	Bool     = logf.Bool
	Duration = logf.Duration
	Time     = logf.Time
	Any      = logf.Any
)

// DurationIn returns the "duration" field with val expressed as an integer number of units.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", int64(val/unit))
}
