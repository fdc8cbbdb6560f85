/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// DefaultRegistryShards is a default number of shards in the Registry.
const DefaultRegistryShards = 32

// RegistryOpts represents options for Registry.
type RegistryOpts struct {
	// Shards is a number of independently locked parts of the registry. Must be a power of two.
	// DefaultRegistryShards is used if zero.
	Shards int

	// NowFunc is used as a clock source for tracking the last access time of the clients.
	NowFunc func() time.Time

	// OnCreate is called (under the shard lock) when a bucket for a new key is created.
	OnCreate func(key string)

	// OnEvict is called (under the shard lock) when an idle key is evicted.
	OnEvict func(key string)
}

type registryEntry struct {
	bucket   Bucket
	lastSeen time.Time
}

type registryShard struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// Registry is a concurrent mapping from a client key to its Bucket.
// Buckets are created lazily by the BucketFactory, creation is atomic per key
// (there is never more than one bucket for the same key).
// Without eviction the registry grows with every new key and lives as long as its owner.
type Registry struct {
	shards    []registryShard
	mask      uint32
	newBucket BucketFactory
	now       func() time.Time
	size      atomic.Int64
	onCreate  func(key string)
	onEvict   func(key string)
}

// NewRegistry creates a new Registry.
func NewRegistry(newBucket BucketFactory) (*Registry, error) {
	return NewRegistryWithOpts(newBucket, RegistryOpts{})
}

// NewRegistryWithOpts is a more configurable version of NewRegistry.
func NewRegistryWithOpts(newBucket BucketFactory, opts RegistryOpts) (*Registry, error) {
	if newBucket == nil {
		return nil, fmt.Errorf("bucket factory is required")
	}
	shardsNum := opts.Shards
	if shardsNum == 0 {
		shardsNum = DefaultRegistryShards
	}
	if shardsNum < 0 || shardsNum&(shardsNum-1) != 0 {
		return nil, fmt.Errorf("number of shards should be a positive power of two, got %d", shardsNum)
	}
	nowFn := opts.NowFunc
	if nowFn == nil {
		nowFn = time.Now
	}
	shards := make([]registryShard, shardsNum)
	for i := range shards {
		shards[i].entries = make(map[string]*registryEntry)
	}
	return &Registry{
		shards:    shards,
		mask:      uint32(shardsNum - 1), //nolint:gosec // shardsNum is validated above
		newBucket: newBucket,
		now:       nowFn,
		onCreate:  opts.OnCreate,
		onEvict:   opts.OnEvict,
	}, nil
}

// GetOrCreate returns the bucket for the key, creating it if the key is seen for the first time.
// The second returned value is true if the bucket has been created by this call.
func (r *Registry) GetOrCreate(key string) (bucket Bucket, created bool) {
	shard := r.shardFor(key)
	now := r.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if entry, ok := shard.entries[key]; ok {
		entry.lastSeen = now
		return entry.bucket, false
	}
	entry := &registryEntry{bucket: r.newBucket(), lastSeen: now}
	shard.entries[key] = entry
	r.size.Inc()
	if r.onCreate != nil {
		r.onCreate(key)
	}
	return entry.bucket, true
}

// Get returns the bucket for the key if it exists. It doesn't touch the last access time.
func (r *Registry) Get(key string) (Bucket, bool) {
	shard := r.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.entries[key]
	if !ok {
		return nil, false
	}
	return entry.bucket, true
}

// Len returns the number of keys in the registry.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// EvictIdle removes keys that were not accessed for at least idleTTL.
// Buckets that can report their fullness are removed only when completely refilled,
// so a client never observes a reset of its counter. Returns the number of evicted keys.
func (r *Registry) EvictIdle(idleTTL time.Duration) int {
	if idleTTL <= 0 {
		return 0
	}
	now := r.now()
	evicted := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if now.Sub(entry.lastSeen) < idleTTL {
				continue
			}
			if fr, ok := entry.bucket.(fullnessReporter); ok && !fr.Full() {
				continue
			}
			delete(shard.entries, key)
			r.size.Dec()
			evicted++
			if r.onEvict != nil {
				r.onEvict(key)
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}

func (r *Registry) shardFor(key string) *registryShard {
	return &r.shards[uint32(xxhash.Sum64String(key))&r.mask]
}
