/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Params contains common data that relates to the rate limiting procedure.
type Params struct {
	Key                 string
	EstimatedRetryAfter time.Duration
}

// RequestHandler abstracts the operations on a single request that is subject to rate limiting.
type RequestHandler interface {
	// GetContext returns the request context.
	GetContext() context.Context

	// GetKey extracts the rate limiting key from the request.
	// Returns key, bypass (whether to bypass rate limiting), and error.
	GetKey() (string, bool, error)

	// Execute passes the request to the next stage.
	Execute() error

	// OnReject handles request rejection when rate limit is exceeded.
	OnReject(params Params) error

	// OnError handles errors that occur during rate limiting.
	OnError(params Params, err error) error
}

// RequestProcessor performs admission control: it never blocks or queues a request,
// every request is either executed or rejected right away.
type RequestProcessor struct {
	limiter Limiter
}

// NewRequestProcessor creates a new request processor.
func NewRequestProcessor(limiter Limiter) (*RequestProcessor, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	return &RequestProcessor{limiter: limiter}, nil
}

// ProcessRequest contains the shared rate limiting logic.
func (p *RequestProcessor) ProcessRequest(rh RequestHandler) error {
	key, bypass, err := rh.GetKey()
	if err != nil {
		return rh.OnError(Params{Key: key}, fmt.Errorf("get key for rate limit: %w", err))
	}
	if bypass {
		return rh.Execute()
	}

	allow, retryAfter, err := p.limiter.Allow(rh.GetContext(), key)
	if err != nil {
		return rh.OnError(Params{Key: key}, fmt.Errorf("rate limit: %w", err))
	}
	if allow {
		return rh.Execute()
	}
	return rh.OnReject(Params{Key: key, EstimatedRetryAfter: retryAfter})
}
