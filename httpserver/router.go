/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
)

// Paths of the gateway's own endpoints.
const (
	HealthCheckPath = "/healthz"
	MetricsPath     = "/metrics"
)

// systemEndpoints are not involved in HTTP request metrics collecting.
var systemEndpoints = []string{MetricsPath, HealthCheckPath}

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// ErrorDomain is used in JSON error responses.
	ErrorDomain string

	// Middlewares are applied to every request after the default ones (request id, logging, recovery, metrics).
	// Throttling and CORS are passed here.
	Middlewares []func(http.Handler) http.Handler

	// Handler serves all paths except the system endpoints.
	// Unknown paths are answered with 404 JSON error if it's nil.
	Handler http.Handler

	HealthCheck    HealthCheck
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router with the system endpoints and the application handler.
// Unlike New, it doesn't apply the default middlewares.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.Middlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, MetricsPath, metricsHandler)
	router.Method(http.MethodGet, HealthCheckPath, NewHealthCheckHandler(opts.HealthCheck))

	if opts.Handler != nil {
		router.Handle("/*", opts.Handler)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFromRequest(r, logger))
	})

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFromRequest(r, logger))
	})
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, opts Opts, collector *middleware.HTTPRequestMetricsCollector,
) {
	router.Use(middleware.RequestStartTime())
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, makeLoggingOpts(&cfg.Log)))
	router.Use(middleware.Recovery(opts.ErrorDomain))

	getRoutePattern := GetChiRoutePattern
	if opts.HTTPRequestMetrics.GetRoutePattern != nil {
		getRoutePattern = opts.HTTPRequestMetrics.GetRoutePattern
	}
	router.Use(middleware.HTTPRequestMetricsWithOpts(collector, getRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}))
}

func makeLoggingOpts(cfg *LogConfig) middleware.LoggingOpts {
	opts := middleware.LoggingOpts{
		RequestStart:           cfg.RequestStart,
		RequestHeaders:         make(map[string]string, len(cfg.RequestHeaders)),
		ExcludedEndpoints:      cfg.ExcludedEndpoints,
		AddRequestInfoToLogger: cfg.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(cfg.SlowRequestThreshold),
	}
	for _, headerName := range cfg.RequestHeaders {
		opts.RequestHeaders[headerName] = "req_header_" + strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
	}
	return opts
}

func loggerFromRequest(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}

// GetChiRoutePattern extracts chi route pattern from request.
// All proxied requests share the "/*" pattern, so metrics labels stay bounded.
func GetChiRoutePattern(r *http.Request) string {
	// modified code from https://github.com/go-chi/chi/issues/270#issuecomment-479184559
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
