/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// Per-key windows are kept in the Registry, so they are created atomically and can be evicted when idle.
type SlidingWindowLimiter struct {
	registry *Registry
	maxRate  Rate
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

type slidingWindowBucket struct {
	lim *slidingwindow.Limiter
}

func (b slidingWindowBucket) TryConsume() bool {
	return b.lim.Allow()
}

// SlidingWindowBucketFactory returns a BucketFactory producing sliding window counters.
func SlidingWindowBucketFactory(maxRate Rate) (BucketFactory, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive, got %d per %s", maxRate.Count, maxRate.Duration)
	}
	return func() Bucket {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return slidingWindowBucket{lim}
	}, nil
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// The registry must be created with the SlidingWindowBucketFactory.
func NewSlidingWindowLimiter(registry *Registry, maxRate Rate) (*SlidingWindowLimiter, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	return &SlidingWindowLimiter{registry: registry, maxRate: maxRate}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// Retry-after is the time left until the current window ends, measured by the registry clock.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	bucket, _ := l.registry.GetOrCreate(key)
	if bucket.TryConsume() {
		return true, 0, nil
	}
	now := l.registry.now()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}
