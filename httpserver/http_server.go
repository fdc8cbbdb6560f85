/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/service"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"
)

// HTTPRequestMetricsOpts configures the request metrics collected by HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ErrorDomain is used for error response formatting.
	ErrorDomain string
	// Middlewares are applied after the default ones (throttling and CORS go here).
	Middlewares []func(http.Handler) http.Handler
	// Handler serves everything except the system endpoints.
	Handler http.Handler
	// HealthCheck returns statuses of the gateway components for the /healthz endpoint.
	HealthCheck HealthCheck
	// MetricsHandler replaces promhttp.Handler on the /metrics endpoint.
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is used instead of listening on the configured address.
	Listener net.Listener
}

// HTTPServer runs the gateway's http.Server as a service.Unit.
type HTTPServer struct {
	// URL is built from the configured address, use GetPort for the dynamically chosen port.
	URL             string
	HTTPServer      *http.Server
	UnixSocketPath  string
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	port       int32
	serveDone  atomic.Value
	reqMetrics *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates HTTPServer with the default middlewares (request id, logging, recovery and metrics),
// the system endpoints and opts.Handler mounted on "/*".
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint // hugeParam: opts is heavy, it's ok in this case.
	if cfg.Address == "" && cfg.UnixSocketPath == "" && opts.Listener == nil {
		return nil, fmt.Errorf("either address or unix socket path should be set")
	}

	reqMetrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts, reqMetrics)
	configureRouter(router, logger, RouterOpts{
		ErrorDomain:    opts.ErrorDomain,
		Middlewares:    opts.Middlewares,
		Handler:        opts.Handler,
		HealthCheck:    opts.HealthCheck,
		MetricsHandler: opts.MetricsHandler,
	})

	scheme := "http://"
	if cfg.TLS.Enabled {
		scheme = "https://"
	}
	host := cfg.Address
	if cfg.UnixSocketPath != "" {
		host = "localhost" // Ignored when dialing a unix socket.
	}

	return &HTTPServer{
		URL: scheme + host,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		UnixSocketPath:  cfg.UnixSocketPath,
		TLS:             cfg.TLS,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		reqMetrics:      reqMetrics,
	}, nil
}

// Start serves requests until the server is stopped. It blocks, so call it in a separate goroutine.
// Errors other than http.ErrServerClosed are sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.String("unix_socket_path", s.UnixSocketPath),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting gateway HTTP server...")

	if err := s.listen(); err != nil {
		logger.Error("gateway HTTP server failed to listen", log.Error(err))
		fatalError <- err
		return
	}

	var err error
	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("gateway HTTP server closed")
		return
	}
	logger.Error("gateway HTTP server error", log.Error(err))
	fatalError <- err
}

func (s *HTTPServer) listen() error {
	if s.listener == nil {
		if s.UnixSocketPath != "" {
			if err := os.Remove(s.UnixSocketPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove unix socket file %q: %w", s.UnixSocketPath, err)
			}
		}
		network, addr := s.NetworkAndAddr()
		ln, err := net.Listen(network, addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}

	if s.listener.Addr().Network() != networkTCP {
		return nil
	}
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return fmt.Errorf("split TCP listener address: %w", err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return fmt.Errorf("parse TCP listener port %q: %w", portStr, err)
	}
	atomic.StoreInt32(&s.port, int32(port))
	return nil
}

// Stop stops the server. Graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		s.Logger.Info("shutting down gateway HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
		if err := s.HTTPServer.Shutdown(ctx); err != nil {
			s.Logger.Error("gateway HTTP server shutdown failed", log.Error(err))
			return err
		}
	} else {
		s.Logger.Info("closing gateway HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("gateway HTTP server closing failed", log.Error(err))
			return err
		}
	}

	// Start may not have been called.
	if done, ok := s.serveDone.Load().(chan struct{}); ok {
		<-done
	}
	s.Logger.Info("gateway HTTP server stopped")
	return nil
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.MustRegister()
	}
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.Unregister()
	}
}

// NetworkAndAddr returns "unix" and the socket path if UnixSocketPath is set, and "tcp" with the address otherwise.
func (s *HTTPServer) NetworkAndAddr() (network string, addr string) {
	if s.UnixSocketPath != "" {
		return networkUnix, s.UnixSocketPath
	}
	return networkTCP, s.HTTPServer.Addr
}

// GetPort returns the TCP port the server listens on. It's 0 until the server is started or for unix sockets.
func (s *HTTPServer) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}
