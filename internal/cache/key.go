package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/classdb/model"
)

// Key identifies a cached class file.
// Location ids are never reused, so a key never refers to stale content
// of a different location.
type Key struct {
	Location model.LocationID
	Class    string
}

func (k Key) sum() uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k.Location))

	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(k.Class)
	return d.Sum64()
}

// size is the accounted size of an entry.
func (k Key) size(b []byte) int64 {
	return int64(len(b) + len(k.Class))
}
