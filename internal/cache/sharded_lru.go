package cache

import (
	"sync"

	"github.com/hupe1980/classdb/internal/resource"
	"github.com/hupe1980/classdb/model"
)

const numShards = 64

// Sharded is a sharded LRU cache for high-concurrency workloads.
// It distributes entries across 64 shards to reduce lock contention.
type Sharded struct {
	shards [numShards]*LRU
}

// NewSharded creates a new sharded LRU cache.
// The capacity is divided evenly across all shards.
func NewSharded(capacity int64, rc *resource.Controller) *Sharded {
	shardCapacity := max(capacity/numShards, 1)

	s := &Sharded{}
	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, rc)
	}
	return s
}

func (s *Sharded) shard(key Key) *LRU {
	return s.shards[key.sum()%numShards]
}

// Get returns a cached class file.
func (s *Sharded) Get(key Key) ([]byte, bool) {
	return s.shard(key).Get(key)
}

// Set caches a class file.
func (s *Sharded) Set(key Key, b []byte) {
	s.shard(key).Set(key, b)
}

// Invalidate removes entries matching the predicate from every shard.
// This iterates all shards, which is expensive but rare.
func (s *Sharded) Invalidate(predicate func(key Key) bool) int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	wg.Add(numShards)

	for i := range numShards {
		go func(shard *LRU) {
			defer wg.Done()
			n := shard.Invalidate(predicate)
			mu.Lock()
			removed += n
			mu.Unlock()
		}(s.shards[i])
	}

	wg.Wait()
	return removed
}

// InvalidateLocation removes every class cached for the location.
func (s *Sharded) InvalidateLocation(id model.LocationID) int {
	return s.Invalidate(func(k Key) bool { return k.Location == id })
}

// Stats returns aggregated hit/miss statistics.
func (s *Sharded) Stats() (hits, misses int64) {
	for i := range numShards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *Sharded) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// Len returns the number of cached entries across all shards.
func (s *Sharded) Len() int {
	var total int
	for i := range numShards {
		total += s.shards[i].Len()
	}
	return total
}
