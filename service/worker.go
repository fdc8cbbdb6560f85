/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-throttlegate/log"
)

// ErrPeriodicWorkerStop may be returned by the underlying worker to stop PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker with a fixed delay between runs until the context is done.
// Errors of a single run are logged and don't stop the loop.
type PeriodicWorker struct {
	worker        Worker
	logger        log.FieldLogger
	initialDelay  time.Duration
	intervalDelay time.Duration
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay is a delay before the first run. The first run is immediate by default.
	InitialDelay time.Duration
	// Name is added to every log message as the "worker" field.
	Name string
}

// NewPeriodicWorker creates a new instance of PeriodicWorker with constant delays.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is a more configurable version of NewPeriodicWorker.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{
		worker:        worker,
		logger:        logger,
		initialDelay:  opts.InitialDelay,
		intervalDelay: intervalDelay,
	}
}

// Run runs PeriodicWorker loop.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		if resErr != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(resErr))
			return
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.initialDelay), log.Duration("interval_delay", pw.intervalDelay))

	timer := time.NewTimer(pw.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := pw.worker.Run(ctx); err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodic worker run failed", log.Error(err))
		}
		timer.Reset(pw.intervalDelay)
	}
}
