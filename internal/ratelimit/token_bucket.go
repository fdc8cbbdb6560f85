/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TokenBucketOpts represents options for TokenBucket.
type TokenBucketOpts struct {
	// NowFunc is used as a clock source. time.Now (monotonic) is used if nil.
	NowFunc func() time.Time
}

// TokenBucket implements the token bucket algorithm with greedy refill.
// Tokens are not added by a timer: the number of available tokens is recomputed lazily on each access
// from the time elapsed since the last refill, so tokens become available continuously
// (rate.Count tokens per rate.Duration) rather than at window boundaries.
// The number of tokens is always in [0, capacity].
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	window     time.Duration
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

var _ Bucket = (*TokenBucket)(nil)

// NewTokenBucket creates a new full TokenBucket with capacity rate.Count
// that refills rate.Count tokens every rate.Duration.
func NewTokenBucket(rate Rate) (*TokenBucket, error) {
	return NewTokenBucketWithOpts(rate, TokenBucketOpts{})
}

// NewTokenBucketWithOpts is a more configurable version of NewTokenBucket.
func NewTokenBucketWithOpts(rate Rate, opts TokenBucketOpts) (*TokenBucket, error) {
	if rate.Count <= 0 {
		return nil, fmt.Errorf("rate count should be positive, got %d", rate.Count)
	}
	if rate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration should be positive, got %s", rate.Duration)
	}
	nowFn := opts.NowFunc
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenBucket{
		capacity:   float64(rate.Count),
		window:     rate.Duration,
		tokens:     float64(rate.Count),
		lastRefill: nowFn(),
		now:        nowFn,
	}, nil
}

// TokenBucketFactory returns a BucketFactory producing TokenBucket instances.
func TokenBucketFactory(rate Rate, opts TokenBucketOpts) (BucketFactory, error) {
	if _, err := NewTokenBucketWithOpts(rate, opts); err != nil {
		return nil, err
	}
	return func() Bucket {
		b, _ := NewTokenBucketWithOpts(rate, opts) // Error is always nil here, rate is validated above.
		return b
	}, nil
}

// TryConsume takes a single token from the bucket if it's available.
func (b *TokenBucket) TryConsume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the current (refilled) number of tokens.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Full reports whether the bucket is completely refilled.
func (b *TokenBucket) Full() bool {
	return b.Tokens() >= b.capacity
}

// Capacity returns the maximum number of tokens.
func (b *TokenBucket) Capacity() int {
	return int(b.capacity)
}

// RetryAfter returns how long it takes until a single token becomes available.
func (b *TokenBucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	missing := 1 - b.tokens
	return time.Duration(math.Ceil(missing * float64(b.window) / b.capacity))
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	// Multiplying before dividing keeps whole-token refills exact (e.g. 12s for 5 tokens/min).
	b.tokens += float64(elapsed) * b.capacity / float64(b.window)
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
