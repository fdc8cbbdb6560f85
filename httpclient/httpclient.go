/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds http.RoundTripper chains for the calls from the gateway to the upstream:
// request id propagation, logging, metrics and retries of idempotent requests.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-throttlegate/log"
)

// DefaultRequestType is used in logs and metrics when Opts.RequestType is empty.
const DefaultRequestType = "upstream"

// Opts represents options for building the client transport.
type Opts struct {
	// RequestType distinguishes calls in logs and metrics (e.g. "proxy" or "health_check").
	RequestType string

	// UserAgent is set to requests without the User-Agent header. Nothing is set if it's empty.
	UserAgent string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used if it's nil.
	Delegate http.RoundTripper

	// Logger is used when there is no logger in the request context.
	Logger log.FieldLogger

	// Collector receives request durations when metrics are enabled.
	Collector MetricsCollector

	// DisableRetries turns retries off regardless of the configuration.
	// Forwarded client requests must not be retried by the gateway.
	DisableRetries bool
}

// NewTransportWithOpts wraps the delegate transport with metrics, logging, user agent, request id
// and retries (in this order, so every retry attempt is logged and measured).
func NewTransportWithOpts(cfg *Config, opts Opts) (http.RoundTripper, error) {
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.Logging.Mode != LoggingModeNone {
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, LoggingRoundTripperOpts{
			Logger:               opts.Logger,
			Mode:                 cfg.Logging.Mode,
			SlowRequestThreshold: time.Duration(cfg.Logging.SlowRequestThreshold),
		})
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	if cfg.Retries.Enabled && !opts.DisableRetries {
		rt, err := NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
			Logger:           opts.Logger,
			MaxRetryAttempts: cfg.Retries.MaxAttempts,
			BackoffPolicy:    cfg.Retries.GetPolicy(),
		})
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
		delegate = rt
	}

	return delegate, nil
}

// NewWithOpts creates an http.Client with the transport built by NewTransportWithOpts.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	transport, err := NewTransportWithOpts(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport}, nil
}

// MustWithOpts is like NewWithOpts but panics if an error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
