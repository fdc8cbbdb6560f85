/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional HTTP server exposing pprof endpoints of the gateway process.
package profserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ProfServer serves /debug/pprof/* endpoints. It's never throttled.
// It implements service.Unit interface.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	started atomic.Bool
	done    chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new profiling server.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL:        "http://" + cfg.Address,
		HTTPServer: &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		Logger:     logger.With(log.String("address", cfg.Address)),
		done:       make(chan struct{}),
	}
}

// Start starts the profiling server and blocks until it's stopped.
// A listening error is sent to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	s.Logger.Info("starting profiling HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.Logger.Info("profiling HTTP server closed")
			return
		}
		s.Logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the profiling server. In graceful mode, in-flight requests (e.g. CPU profile collection)
// are given a few seconds to complete.
func (s *ProfServer) Stop(gracefully bool) error {
	s.Logger.Info("stopping profiling HTTP server...", log.Bool("gracefully", gracefully))

	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = s.HTTPServer.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
			err = s.HTTPServer.Close()
		}
	} else {
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("profiling HTTP server stopping error", log.Error(err))
		return err
	}
	if s.started.Load() {
		<-s.done
	}
	return nil
}
