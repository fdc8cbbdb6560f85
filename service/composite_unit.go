/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit groups several units (e.g. the HTTP server and background workers) so they
// can be started and stopped together.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start starts every unit in its own goroutine and blocks until all of them return.
//
// When some unit reports a fatal error, the rest are stopped non-gracefully, and a CompositeUnitError
// with all collected errors (including the stop ones) is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	for i := range unitErrs {
		unitErrs[i] = make(chan error, 1)
	}

	done := make(chan bool, len(cu.Units))
	remaining := atomic.NewInt32(int32(len(cu.Units))) //nolint:gosec // unit count is small
	for i := range cu.Units {
		go func(i int) {
			cu.Units[i].Start(unitErrs[i])
			if len(unitErrs[i]) != 0 {
				done <- false
				return
			}
			if remaining.Dec() == 0 {
				done <- true
			}
		}(i)
	}

	if len(cu.Units) == 0 || <-done {
		return
	}

	stopErr := cu.Stop(false)

	var errs []error
	for _, unitErr := range unitErrs {
		select {
		case err := <-unitErr:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	if len(errs) > 0 {
		fatalError <- &CompositeUnitError{errs}
	}
}

// Stop stops all units concurrently and returns a CompositeUnitError if any of them fails.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	results := make(chan error, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			results <- u.Stop(gracefully)
		}(u)
	}
	wg.Wait()
	close(results)

	var errs []error
	for err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is returned by CompositeUnit's methods and holds errors of the particular units.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error joins messages of all unit errors.
func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap makes the errors of particular units available for errors.Is and errors.As.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
