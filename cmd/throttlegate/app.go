/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acronis/go-throttlegate/config"
	"github.com/acronis/go-throttlegate/httpclient"
	"github.com/acronis/go-throttlegate/httpserver"
	"github.com/acronis/go-throttlegate/httpserver/middleware/cors"
	"github.com/acronis/go-throttlegate/httpserver/middleware/throttle"
	"github.com/acronis/go-throttlegate/internal/upstream"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/profserver"
	"github.com/acronis/go-throttlegate/service"
)

const (
	metricsNamespace = "throttlegate"
	errorDomain      = "ThrottleGate"
)

const registryHealthCheckComponentName = "throttle_registry"

// AppConfig bundles configurations of all gateway components.
type AppConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Throttle   *throttle.Config
	CORS       *cors.Config
	Upstream   *upstream.Config
	ProfServer *profserver.Config
}

// NewAppConfig creates a new AppConfig with the default key prefixes.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		Throttle:   throttle.NewConfig(),
		CORS:       cors.NewConfig(),
		Upstream:   upstream.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults sets default values of all components.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values of all components from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	if err := config.NewDefaultLoader().LoadFromPath(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type gateway struct {
	Server    *httpserver.HTTPServer
	Throttler *throttle.Throttler
	Unit      *service.CompositeUnit
}

// gatewayMetrics contains collectors registered by the caller. Nil collectors disable metrics.
type gatewayMetrics struct {
	Throttle throttle.MetricsCollector
	Upstream httpclient.MetricsCollector
}

func newGateway(cfg *AppConfig, logger log.FieldLogger, metrics gatewayMetrics) (*gateway, error) {
	throttler, err := throttle.New(cfg.Throttle, errorDomain, metrics.Throttle)
	if err != nil {
		return nil, fmt.Errorf("create throttler: %w", err)
	}

	corsMiddleware, err := cors.Middleware(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("create CORS middleware: %w", err)
	}

	var clientHeader string
	if cfg.Throttle.ClientKey.TrustHeader {
		clientHeader = cfg.Throttle.ClientKey.Header
	}
	appHandler, err := upstream.NewHandlerWithOpts(cfg.Upstream, errorDomain, clientHeader, logger,
		upstream.ProxyOpts{MetricsCollector: metrics.Upstream})
	if err != nil {
		return nil, fmt.Errorf("create application handler: %w", err)
	}

	srv, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ErrorDomain: errorDomain,
		Middlewares: []func(http.Handler) http.Handler{throttler.Middleware(), corsMiddleware},
		Handler:     appHandler,
		HealthCheck: httpserver.CombineHealthChecks(registryHealthCheck(), appHandler.HealthCheck()),
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace: metricsNamespace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}

	units := []service.Unit{srv}
	if evictionWorker := throttler.NewEvictionWorker(logger); evictionWorker != nil {
		units = append(units, service.NewWorkerUnit(evictionWorker))
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}

	return &gateway{Server: srv, Throttler: throttler, Unit: service.NewCompositeUnit(units...)}, nil
}

func registryHealthCheck() httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return httpserver.HealthCheckResult{registryHealthCheckComponentName: httpserver.HealthCheckStatusOK}, nil
	}
}
