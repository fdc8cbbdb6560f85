/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs units (HTTP server, background workers) of a process
// and stops them gracefully when an OS shutdown signal is received.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-throttlegate/log"
)

// DefaultShutdownSignals are signals that stop the service gracefully.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Opts represents an options for Service.
type Opts struct {
	ShutdownSignals []os.Signal
}

// Service registers metrics of its unit, starts it and stops it gracefully by an OS signal or context cancellation.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates new Service which will start and stop passing unit.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: DefaultShutdownSignals})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{Unit: unit, Signals: make(chan os.Signal, 1), Logger: logger, Opts: opts}
}

// Start wraps StartContext using the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until
// a fatal error occurs, a shutdown signal is received or ctx is done.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	if len(s.Opts.ShutdownSignals) != 0 {
		signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
		defer signal.Stop(s.Signals)
	}

	fatalError := make(chan error, 1)
	go s.Unit.Start(fatalError)

	select {
	case err := <-fatalError:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case <-ctx.Done():
		s.Logger.Info("context is done, stopping service")
	case sig := <-s.Signals:
		s.Logger.Info("shutdown signal received, stopping service", log.String("signal", sig.String()))
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service stopped")
	return nil
}
