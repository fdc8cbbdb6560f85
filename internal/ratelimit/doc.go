/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-client rate limiting primitives used by the throttling middleware.
//
// The central piece is a Registry: an explicitly owned, sharded concurrent map from a client key
// to its Bucket. A bucket is created lazily on the first request of an unseen client and the creation
// is atomic (compute-if-absent), so there is never more than one bucket per key.
//
// Key features:
//   - TokenBucket: a lazy-refill token bucket driven by a monotonic clock (no background timers)
//   - RateBucket: the same contract backed by golang.org/x/time/rate
//   - Leaky bucket (GCRA) and sliding window algorithms behind the common Limiter interface
//   - Optional eviction of idle clients whose buckets are already full
package ratelimit
