/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"net/http"

	"github.com/acronis/go-throttlegate/httpserver"
	"github.com/acronis/go-throttlegate/log"
)

// Handler is the application handler with an optional health check of the upstream.
type Handler interface {
	http.Handler
	HealthCheck() httpserver.HealthCheck
}

type proxyHandler struct {
	*Proxy
}

func (h proxyHandler) HealthCheck() httpserver.HealthCheck {
	return h.Proxy.CheckHealth
}

type echoHandler struct {
	*EchoHandler
}

func (echoHandler) HealthCheck() httpserver.HealthCheck {
	return nil
}

// NewHandler returns a Proxy if the upstream URL is configured, and EchoHandler otherwise.
func NewHandler(cfg *Config, errDomain, clientHeader string, logger log.FieldLogger) (Handler, error) {
	return NewHandlerWithOpts(cfg, errDomain, clientHeader, logger, ProxyOpts{})
}

// NewHandlerWithOpts is like NewHandler but passes options to the Proxy.
func NewHandlerWithOpts(
	cfg *Config, errDomain, clientHeader string, logger log.FieldLogger, opts ProxyOpts,
) (Handler, error) {
	if cfg.URL == "" {
		logger.Info("upstream is not configured, admitted requests are answered by the echo handler")
		return echoHandler{NewEchoHandler(clientHeader)}, nil
	}
	p, err := NewProxyWithOpts(cfg, errDomain, logger, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("admitted requests are forwarded to the upstream", log.String("upstream", cfg.URL))
	return proxyHandler{p}, nil
}
