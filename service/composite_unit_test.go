/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func makeCompositeUnit(n int, running *atomic.Int32, stopWithError func(i int) bool) (*CompositeUnit, []*mockUnit) {
	mocks := make([]*mockUnit, 0, n)
	units := make([]Unit, 0, n)
	for i := 0; i < n; i++ {
		u := newMockUnit(fmt.Sprintf("unit#%d", i), running, stopWithError != nil && stopWithError(i))
		mocks = append(mocks, u)
		units = append(units, u)
	}
	return NewCompositeUnit(units...), mocks
}

func TestCompositeUnit_StartAndStop(t *testing.T) {
	t.Run("all units stop without errors", func(t *testing.T) {
		const unitsNum = 20
		var running atomic.Int32
		cu, _ := makeCompositeUnit(unitsNum, &running, nil)

		startExit := make(chan struct{})
		go func() {
			defer close(startExit)
			cu.Start(make(chan error, 1))
		}()
		require.Eventually(t, func() bool { return running.Load() == unitsNum }, 3*time.Second, 10*time.Millisecond)

		require.NoError(t, cu.Stop(true))
		select {
		case <-startExit:
		case <-time.After(3 * time.Second):
			require.Fail(t, "Start should return after all units are stopped")
		}
		require.EqualValues(t, 0, running.Load())
	})

	t.Run("some units stop with errors", func(t *testing.T) {
		const unitsWithErrNum = 6
		const unitsNum = 10
		var running atomic.Int32
		cu, _ := makeCompositeUnit(unitsNum, &running, func(i int) bool { return i < unitsWithErrNum })

		startExit := make(chan struct{})
		go func() {
			defer close(startExit)
			cu.Start(make(chan error, 1))
		}()
		require.Eventually(t, func() bool { return running.Load() == unitsNum }, 3*time.Second, 10*time.Millisecond)

		err := cu.Stop(true)
		var cuErr *CompositeUnitError
		require.ErrorAs(t, err, &cuErr)
		require.Len(t, cuErr.UnitErrors, unitsWithErrNum)
		<-startExit
		require.EqualValues(t, 0, running.Load())
	})

	t.Run("fatal error of one unit stops the others", func(t *testing.T) {
		var running atomic.Int32
		cu, mocks := makeCompositeUnit(3, &running, nil)
		startErr := errors.New("listen failed")
		mocks[1].startErr = startErr

		fatalErr := make(chan error, 1)
		go cu.Start(fatalErr)

		select {
		case err := <-fatalErr:
			require.ErrorIs(t, err, startErr)
		case <-time.After(3 * time.Second):
			require.Fail(t, "fatal error should be reported")
		}
		for _, m := range mocks {
			require.EqualValues(t, 1, m.stopCalled.Load())
			require.EqualValues(t, 0, m.stopGracefullyCalled.Load())
		}
		require.Eventually(t, func() bool { return running.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("no units", func(t *testing.T) {
		fatalErr := make(chan error, 1)
		NewCompositeUnit().Start(fatalErr)
		require.Len(t, fatalErr, 0)
		require.NoError(t, NewCompositeUnit().Stop(true))
	})
}

func TestCompositeUnit_Metrics(t *testing.T) {
	var running atomic.Int32
	cu, mocks := makeCompositeUnit(2, &running, nil)
	cu.Units = append(cu.Units, NewWorkerUnit(WorkerFunc(nil)))

	cu.MustRegisterMetrics()
	cu.UnregisterMetrics()
	for _, m := range mocks {
		require.EqualValues(t, 1, m.mustRegisterMetricsCalled.Load())
		require.EqualValues(t, 1, m.unregisterMetricsCalled.Load())
	}
}

func TestCompositeUnitError(t *testing.T) {
	errA := errors.New("server: stop timeout")
	errB := errors.New("eviction: canceled")
	err := &CompositeUnitError{UnitErrors: []error{errA, errB}}
	require.EqualError(t, err, "server: stop timeout; eviction: canceled")
	require.ErrorIs(t, err, errB)
}
