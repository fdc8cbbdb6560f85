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

// BucketLimiter is a per-key Limiter that keeps a Bucket for every key in the Registry.
type BucketLimiter struct {
	registry         *Registry
	emissionInterval time.Duration
}

var _ Limiter = (*BucketLimiter)(nil)

// NewBucketLimiter creates a new BucketLimiter on top of the registry.
// maxRate is used only for estimating the Retry-After value
// for buckets that cannot calculate it by themselves.
func NewBucketLimiter(registry *Registry, maxRate Rate) (*BucketLimiter, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	return &BucketLimiter{registry: registry, emissionInterval: maxRate.emissionInterval()}, nil
}

// Allow consumes a single token from the key's bucket.
func (l *BucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	bucket, _ := l.registry.GetOrCreate(key)
	if bucket.TryConsume() {
		return true, 0, nil
	}
	if ra, ok := bucket.(interface{ RetryAfter() time.Duration }); ok {
		return false, ra.RetryAfter(), nil
	}
	return false, l.emissionInterval, nil
}

// Registry returns the underlying registry.
func (l *BucketLimiter) Registry() *Registry {
	return l.registry
}
