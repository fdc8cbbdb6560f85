/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// PerMinute returns a Rate that allows count requests per minute.
func PerMinute(count int) Rate {
	return Rate{Count: count, Duration: time.Minute}
}

// emissionInterval returns the time needed to refill a single token.
func (r Rate) emissionInterval() time.Duration {
	if r.Count <= 0 {
		return r.Duration
	}
	return r.Duration / time.Duration(r.Count)
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Bucket is a single client's rate limit counter.
// TryConsume must be safe for concurrent use.
type Bucket interface {
	TryConsume() bool
}

// BucketFactory creates a new full bucket.
type BucketFactory func() Bucket

// fullnessReporter is implemented by buckets that can tell whether they are completely refilled.
type fullnessReporter interface {
	Full() bool
}
