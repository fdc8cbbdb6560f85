/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateBucket is a Bucket backed by golang.org/x/time/rate.Limiter.
// x/time/rate is a token bucket too, so the observable behavior matches TokenBucket:
// burst is the capacity and tokens are refilled continuously.
type RateBucket struct {
	limiter *rate.Limiter
	now     func() time.Time
}

var _ Bucket = (*RateBucket)(nil)

// NewRateBucket creates a new full RateBucket.
func NewRateBucket(maxRate Rate, opts TokenBucketOpts) (*RateBucket, error) {
	if maxRate.Count <= 0 {
		return nil, fmt.Errorf("rate count should be positive, got %d", maxRate.Count)
	}
	if maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration should be positive, got %s", maxRate.Duration)
	}
	nowFn := opts.NowFunc
	if nowFn == nil {
		nowFn = time.Now
	}
	return &RateBucket{
		limiter: rate.NewLimiter(rate.Every(maxRate.emissionInterval()), maxRate.Count),
		now:     nowFn,
	}, nil
}

// RateBucketFactory returns a BucketFactory producing RateBucket instances.
func RateBucketFactory(maxRate Rate, opts TokenBucketOpts) (BucketFactory, error) {
	if _, err := NewRateBucket(maxRate, opts); err != nil {
		return nil, err
	}
	return func() Bucket {
		b, _ := NewRateBucket(maxRate, opts) // Error is always nil here, rate is validated above.
		return b
	}, nil
}

// TryConsume takes a single token from the bucket if it's available.
func (b *RateBucket) TryConsume() bool {
	return b.limiter.AllowN(b.now(), 1)
}

// Full reports whether the bucket is completely refilled.
func (b *RateBucket) Full() bool {
	return b.limiter.TokensAt(b.now()) >= float64(b.limiter.Burst())
}
