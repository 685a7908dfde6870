package classdb

import (
	"context"

	"github.com/hupe1980/classdb/internal/cache"
	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/internal/resource"
)

// classCache keeps recently read class bytes. Entries of a location are
// dropped once its record is removed. A nil *classCache caches nothing.
type classCache struct {
	lru *cache.Sharded
}

func newClassCache(size int64, rc *resource.Controller) *classCache {
	if size <= 0 {
		return nil
	}
	return &classCache{lru: cache.NewSharded(size, rc)}
}

func (c *classCache) get(key cache.Key) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *classCache) set(key cache.Key, b []byte) {
	if c == nil {
		return
	}
	c.lru.Set(key, b)
}

func (c *classCache) stats() (entries int, size, hits, misses int64) {
	if c == nil {
		return 0, 0, 0, 0
	}
	hits, misses = c.lru.Stats()
	return c.lru.Len(), c.lru.Size(), hits, misses
}

// Handle implements feature.Handler.
func (c *classCache) Handle(_ context.Context, sig feature.Signal) error {
	if c == nil {
		return nil
	}
	if s, ok := sig.(feature.LocationRemoved); ok {
		c.lru.InvalidateLocation(s.Record.ID)
	}
	return nil
}
