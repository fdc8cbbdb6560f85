/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/log"
)

func TestLoggingParams_AddTimeSlot(t *testing.T) {
	lp := LoggingParams{}
	lp.AddTimeSlotInt("upstream_ms", 100)
	lp.AddTimeSlotInt("upstream_ms", 50)
	lp.AddTimeSlotDurationInMs("dial_ms", 2*time.Second)
	require.Equal(t, loggableIntMap{"upstream_ms": 150, "dial_ms": 2000}, lp.timeSlots)
}

func TestLoggingParams_ExtendFields(t *testing.T) {
	lp := LoggingParams{}
	lp.ExtendFields(log.String("throttle_outcome", "allowed"))
	lp.ExtendFields(log.Int("attempt", 1), log.Bool("cached", false))
	require.Len(t, lp.fields, 3)
	require.Equal(t, "throttle_outcome", lp.fields[0].Key)
	require.Equal(t, "cached", lp.fields[2].Key)
}
