/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies for retrying calls to the upstream.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy creates a new backoff for every retried call.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy makes delays grow exponentially with the given multiplier.
// Delays are randomized by the default backoff.ExponentialBackOff factor.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	// MaxAttempts limits the number of retries. Zero means no limit.
	MaxAttempts int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with given initial interval and max retry attempts.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		Multiplier:      backoff.DefaultMultiplier,
		MaxAttempts:     maxAttempts,
	}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.Multiplier > 1 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0
	return withMaxRetries(eb, p.MaxAttempts)
}

// ConstantBackoffPolicy waits the same interval before every retry.
type ConstantBackoffPolicy struct {
	Interval time.Duration
	// MaxAttempts limits the number of retries. Zero means no limit.
	MaxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempts.
func NewConstantBackoffPolicy(interval time.Duration, maxAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxAttempts: maxAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts)
}

func withMaxRetries(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	b.Reset()
	return b
}
