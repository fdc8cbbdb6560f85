/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"fmt"

	"go.uber.org/atomic"
)

type mockUnit struct {
	name          string
	running       *atomic.Int32
	stopCh        chan struct{}
	stopOnce      atomic.Bool
	stopWithError bool
	startErr      error

	startCalled               atomic.Int32
	stopCalled                atomic.Int32
	stopGracefullyCalled      atomic.Int32
	mustRegisterMetricsCalled atomic.Int32
	unregisterMetricsCalled   atomic.Int32
}

func newMockUnit(name string, running *atomic.Int32, stopWithError bool) *mockUnit {
	return &mockUnit{name: name, running: running, stopCh: make(chan struct{}), stopWithError: stopWithError}
}

func (u *mockUnit) Start(fatalError chan<- error) {
	u.startCalled.Inc()
	if u.startErr != nil {
		fatalError <- u.startErr
		return
	}
	u.running.Inc()
	<-u.stopCh
	u.running.Dec()
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopCalled.Inc()
	if gracefully {
		u.stopGracefullyCalled.Inc()
	}
	if u.stopOnce.CompareAndSwap(false, true) {
		close(u.stopCh)
	}
	if u.stopWithError {
		return fmt.Errorf("%s: stop failed", u.name)
	}
	return nil
}

func (u *mockUnit) MustRegisterMetrics() {
	u.mustRegisterMetricsCalled.Inc()
}

func (u *mockUnit) UnregisterMetrics() {
	u.unregisterMetricsCalled.Inc()
}
