package registry

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"github.com/hupe1980/classdb/model"
)

// Snapshot is the pinned id set of one client session.
//
// Its content never changes once it has been handed out. Release it exactly
// once through Close or Registry.Release; further releases are no-ops.
type Snapshot struct {
	name     string
	registry *Registry

	ids       atomic.Pointer[roaring64.Bitmap]
	locations []model.RegisteredLocation

	// ready is set once every pinned id is backed by a committed record.
	ready    atomic.Bool
	released atomic.Bool
}

func newSnapshot(r *Registry) *Snapshot {
	s := &Snapshot{name: uuid.NewString(), registry: r}
	s.ids.Store(roaring64.New())
	return s
}

func (s *Snapshot) pin(locs []model.RegisteredLocation) {
	bm := roaring64.New()
	for _, l := range locs {
		bm.Add(uint64(l.ID))
	}
	bm.RunOptimize()
	s.ids.Store(bm)
}

// Name returns the generated snapshot name.
func (s *Snapshot) Name() string { return s.name }

// Contains reports whether id is part of the snapshot.
func (s *Snapshot) Contains(id model.LocationID) bool {
	return s.ids.Load().Contains(uint64(id))
}

// Len returns the number of distinct ids.
func (s *Snapshot) Len() int {
	return int(s.ids.Load().GetCardinality())
}

// IDs returns the ids in classpath order.
func (s *Snapshot) IDs() []model.LocationID {
	return model.IDs(s.locations)
}

// Locations returns the locations in classpath order.
func (s *Snapshot) Locations() []model.RegisteredLocation {
	return slices.Clone(s.locations)
}

// Released reports whether the snapshot was released.
func (s *Snapshot) Released() bool { return s.released.Load() }

// Close releases the snapshot and runs cleanup.
func (s *Snapshot) Close() error {
	_, err := s.registry.Release(context.Background(), s)
	return err
}

func (s *Snapshot) bitmap() *roaring64.Bitmap {
	return s.ids.Load()
}
