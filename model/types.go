package model

import (
	"fmt"

	"github.com/hupe1980/classdb/location"
)

// LocationID identifies a persisted location record.
// Zero is never assigned and means "no location".
type LocationID uint64

// String returns a string representation of the LocationID.
func (id LocationID) String() string {
	return fmt.Sprintf("Loc(%d)", uint64(id))
}

// State is the indexing state of a location record.
type State uint8

const (
	// StateInitial means the record is registered but its classes are not yet indexed.
	StateInitial State = iota
	// StateProcessed means indexing of the record's content completed.
	StateProcessed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateProcessed:
		return "processed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// RegisteredLocation is the in-memory handle of a persisted location record.
//
// The Location may lag behind the on-disk reality between refresh cycles.
type RegisteredLocation struct {
	ID       LocationID
	Location location.Location
}

// IDs returns the ids of the given locations in order.
func IDs(locs []RegisteredLocation) []LocationID {
	ids := make([]LocationID, len(locs))
	for i, l := range locs {
		ids[i] = l.ID
	}
	return ids
}
