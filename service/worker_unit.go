/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"
)

// ErrWorkerUnitStopTimeoutExceeded is an error that occurs when WorkerUnit's gracefully stop timeout is exceeded.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnit allows presenting Worker as Unit.
// Stop cancels the context passed to the Worker.
type WorkerUnit struct {
	worker            Worker
	ctx               context.Context
	cancel            context.CancelFunc
	done              chan struct{}
	stopTimeout       time.Duration
	metricsRegisterer MetricsRegisterer
}

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	MetricsRegisterer MetricsRegisterer
	// GracefulStopTimeout limits waiting for the Worker in graceful Stop. Zero means no limit.
	GracefulStopTimeout time.Duration
}

// NewWorkerUnit creates a new instance of WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts is a more configurable version of NewWorkerUnit.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:            worker,
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
		stopTimeout:       opts.GracefulStopTimeout,
		metricsRegisterer: opts.MetricsRegisterer,
	}
}

// Start runs the underlying Worker and blocks until it returns.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalError <- err
	}
}

// Stop stops underlying Worker. In graceful mode, it waits until the Worker returns.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return nil
	}
	if u.stopTimeout == 0 {
		<-u.done
		return nil
	}
	timer := time.NewTimer(u.stopTimeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return nil
	case <-timer.C:
		return ErrWorkerUnitStopTimeoutExceeded
	}
}

// MustRegisterMetrics registers underlying Worker's metrics.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters underlying Worker's metrics.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.UnregisterMetrics()
	}
}
