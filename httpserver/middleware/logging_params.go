/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-throttlegate/log"
)

type loggableIntMap map[string]int64

func (lm loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for key, value := range lm {
		e.EncodeFieldInt64(key, value)
	}
	return nil
}

// LoggingParams stores parameters for the Logging middleware
// that may be modified dynamically by the underlying middlewares and handlers.
type LoggingParams struct {
	mu        sync.Mutex
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields extends list of fields that will be logged by the Logging middleware.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	lp.fields = append(lp.fields, fields...)
	lp.mu.Unlock()
}

// AddTimeSlotInt adds the value to the named element of the time_slots map.
func (lp *LoggingParams) AddTimeSlotInt(name string, value int64) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.timeSlots == nil {
		lp.timeSlots = make(loggableIntMap, 1)
	}
	lp.timeSlots[name] += value
}

// AddTimeSlotDurationInMs adds the duration in milliseconds to the named element of the time_slots map.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.AddTimeSlotInt(name, dur.Milliseconds())
}
