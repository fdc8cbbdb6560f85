/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/acronis/go-throttlegate/httpclient"
	"github.com/acronis/go-throttlegate/httpserver"
	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
)

// TimeSlotName is a name of the access log time slot with the duration of the upstream round trip.
const TimeSlotName = "upstream_ms"

// HealthCheckComponentName is a name of the upstream component in the /healthz response.
const HealthCheckComponentName = "upstream"

// Request types of the upstream calls in the client logs and metrics.
const (
	RequestTypeProxy       = "proxy"
	RequestTypeHealthCheck = "health_check"
)

// HealthCheckUserAgent is sent in the health check requests.
const HealthCheckUserAgent = "throttlegate-healthcheck"

// Proxy forwards admitted requests to the upstream service.
type Proxy struct {
	target      *url.URL
	errDomain   string
	logger      log.FieldLogger
	reverse     *httputil.ReverseProxy
	client      *http.Client
	healthCheck HealthCheckConfig
}

// ProxyOpts represents options for the Proxy.
type ProxyOpts struct {
	// MetricsCollector receives durations of the upstream calls. Nothing is collected if it's nil.
	MetricsCollector httpclient.MetricsCollector
}

// NewProxy creates a new Proxy to the upstream from the configuration.
func NewProxy(cfg *Config, errDomain string, logger log.FieldLogger) (*Proxy, error) {
	return NewProxyWithOpts(cfg, errDomain, logger, ProxyOpts{})
}

// NewProxyWithOpts is a more configurable version of NewProxy.
func NewProxyWithOpts(cfg *Config, errDomain string, logger log.FieldLogger, opts ProxyOpts) (*Proxy, error) {
	target, err := parseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   time.Duration(cfg.Timeouts.Dial),
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = time.Duration(cfg.Timeouts.ResponseHeader)

	// Forwarded requests are never retried, the client decides whether to repeat them.
	proxyTransport, err := httpclient.NewTransportWithOpts(&cfg.Client, httpclient.Opts{
		RequestType:    RequestTypeProxy,
		Delegate:       transport,
		Logger:         logger,
		Collector:      opts.MetricsCollector,
		DisableRetries: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream proxy transport: %w", err)
	}
	healthCheckClient, err := httpclient.NewWithOpts(&cfg.Client, httpclient.Opts{
		RequestType: RequestTypeHealthCheck,
		UserAgent:   HealthCheckUserAgent,
		Delegate:    transport,
		Logger:      logger,
		Collector:   opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream health check client: %w", err)
	}

	p := &Proxy{
		target:      target,
		errDomain:   errDomain,
		logger:      logger,
		client:      healthCheckClient,
		healthCheck: cfg.HealthCheck,
	}

	reverse := httputil.NewSingleHostReverseProxy(target)
	director := reverse.Director
	preserveHost := cfg.PreserveHost
	reverse.Director = func(r *http.Request) {
		inboundHost := r.Host
		director(r)
		if preserveHost {
			r.Host = inboundHost
		} else {
			r.Host = target.Host
		}
	}
	reverse.Transport = proxyTransport
	reverse.ErrorHandler = p.handleError
	p.reverse = reverse
	return p, nil
}

// ServeHTTP forwards the request and records the upstream round trip into the access log.
func (p *Proxy) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	p.reverse.ServeHTTP(rw, r)
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs(TimeSlotName, time.Since(startTime))
	}
}

func (p *Proxy) handleError(rw http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = p.logger
	}
	if errors.Is(err, context.Canceled) || errors.Is(r.Context().Err(), context.Canceled) {
		logger.Warn("client closed request before upstream responded", log.Error(err))
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
		return
	}
	logger.Error("upstream request failed", log.String("upstream", p.target.Host), log.Error(err))
	restapi.RespondBadGatewayError(rw, p.errDomain, logger)
}

// CheckHealth sends a GET request to the upstream to the configured path.
// Any response below 500 is considered healthy. Nothing is sent if the path is not configured.
func (p *Proxy) CheckHealth(ctx context.Context) (httpserver.HealthCheckResult, error) {
	if p.healthCheck.Path == "" {
		return httpserver.HealthCheckResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.healthCheck.Timeout))
	defer cancel()

	checkURL := *p.target
	checkURL.Path = singleJoiningSlash(p.target.Path, p.healthCheck.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new upstream health check request: %w", err)
	}

	status := httpserver.HealthCheckStatusOK
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("upstream health check failed", log.String("url", checkURL.String()), log.Error(err))
		status = httpserver.HealthCheckStatusFail
	} else {
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			p.logger.Warn("upstream is unhealthy", log.String("url", checkURL.String()), log.Int("status", resp.StatusCode))
			status = httpserver.HealthCheckStatusFail
		}
	}
	return httpserver.HealthCheckResult{HealthCheckComponentName: status}, nil
}

func singleJoiningSlash(a, b string) string {
	aSlash := len(a) > 0 && a[len(a)-1] == '/'
	bSlash := len(b) > 0 && b[0] == '/'
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
