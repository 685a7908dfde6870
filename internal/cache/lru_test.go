package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/classdb/internal/resource"
	"github.com/hupe1980/classdb/model"
)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU(1024, nil)
	key := Key{Location: 1, Class: "a.A"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, []byte("bytes"))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(len("bytes")+len("a.A")), c.Size())
}

func TestLRU_Eviction(t *testing.T) {
	// Each entry accounts 10 bytes: 7 value + 3 name.
	c := NewLRU(30, nil)
	for i := range 3 {
		c.Set(Key{Location: model.LocationID(i + 1), Class: "a.A"}, make([]byte, 7))
	}
	assert.Equal(t, 3, c.Len())

	// Touch the oldest so the second becomes the victim.
	_, ok := c.Get(Key{Location: 1, Class: "a.A"})
	require.True(t, ok)

	c.Set(Key{Location: 4, Class: "a.A"}, make([]byte, 7))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(30), c.Size())

	_, ok = c.Get(Key{Location: 2, Class: "a.A"})
	assert.False(t, ok)
	_, ok = c.Get(Key{Location: 1, Class: "a.A"})
	assert.True(t, ok)
}

func TestLRU_Oversized(t *testing.T) {
	c := NewLRU(8, nil)
	c.Set(Key{Location: 1, Class: "a.A"}, make([]byte, 64))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}

func TestLRU_Update(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := NewLRU(1024, rc)
	key := Key{Location: 1, Class: "a.A"}

	c.Set(key, make([]byte, 10))
	c.Set(key, make([]byte, 20))
	assert.Equal(t, int64(23), c.Size())
	assert.Equal(t, int64(23), rc.MemoryUsage())

	c.Set(key, make([]byte, 5))
	assert.Equal(t, int64(8), c.Size())
	assert.Equal(t, int64(8), rc.MemoryUsage())
}

func TestLRU_ResourceLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	c := NewLRU(1024, rc)

	c.Set(Key{Location: 1, Class: "a.A"}, make([]byte, 10))
	// Denied by the controller, not by the cache capacity.
	c.Set(Key{Location: 2, Class: "a.A"}, make([]byte, 10))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(13), rc.MemoryUsage())

	removed := c.Invalidate(func(Key) bool { return true })
	assert.Equal(t, 1, removed)
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestSharded_InvalidateLocation(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := NewSharded(64*1024*1024, rc)

	for i := range 200 {
		c.Set(Key{Location: model.LocationID(i%4 + 1), Class: fmt.Sprintf("p.C%d", i)}, []byte("x"))
	}
	assert.Equal(t, 200, c.Len())

	removed := c.InvalidateLocation(2)
	assert.Equal(t, 50, removed)
	assert.Equal(t, 150, c.Len())
	assert.Equal(t, c.Size(), rc.MemoryUsage())

	for i := range 200 {
		_, ok := c.Get(Key{Location: model.LocationID(i%4 + 1), Class: fmt.Sprintf("p.C%d", i)})
		assert.Equal(t, i%4+1 != 2, ok)
	}
}

func TestSharded_Concurrent(t *testing.T) {
	c := NewSharded(1024*1024, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := Key{Location: model.LocationID(g + 1), Class: fmt.Sprintf("p.C%d", i)}
				c.Set(key, []byte("payload"))
				_, _ = c.Get(key)
			}
		}()
	}
	wg.Wait()

	hits, _ := c.Stats()
	assert.Positive(t, hits)
	assert.LessOrEqual(t, c.Size(), int64(1024*1024))
}
