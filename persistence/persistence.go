package persistence

import (
	"context"
	"errors"

	"github.com/hupe1980/classdb/model"
)

var (
	// ErrReadOnlyTx is returned when a read transaction attempts a write.
	ErrReadOnlyTx = errors.New("persistence: write in read-only transaction")

	// ErrCorrupt is returned when persisted data fails validation.
	ErrCorrupt = errors.New("persistence: corrupt data")

	// ErrClosed is returned when the store was closed.
	ErrClosed = errors.New("persistence: closed")

	// ErrInvalidRecord is returned when a record without id is stored.
	ErrInvalidRecord = errors.New("persistence: invalid record")
)

// Record is the persisted description of one location version.
type Record struct {
	ID      model.LocationID
	Path    string
	Hash    string
	Runtime bool
	State   model.State

	// SupersededBy links to the record that replaced this one. Zero means
	// none; once set it is never cleared or repointed.
	SupersededBy model.LocationID

	// Vanished marks a record whose location disappeared without a successor.
	Vanished bool
}

// Deprecated reports whether the record has been replaced or has vanished.
func (r Record) Deprecated() bool {
	return r.SupersededBy != 0 || r.Vanished
}

// Tx is a transaction over the record table.
type Tx interface {
	// Get returns the record with the given id.
	Get(id model.LocationID) (Record, bool, error)
	// Scan calls fn for every record in ascending id order until fn returns false.
	Scan(fn func(Record) bool) error
	// Put inserts or replaces a record.
	Put(rec Record) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(id model.LocationID) error
	// NextID allocates a fresh id. Ids are never handed out twice, even across
	// restarts, as long as the allocating transaction commits.
	NextID() (model.LocationID, error)
}

// Persistence is a transactional record store.
type Persistence interface {
	// Read runs fn in a read-only transaction.
	Read(ctx context.Context, fn func(Tx) error) error
	// Write runs fn in a read-write transaction. The transaction commits
	// atomically if fn returns nil; otherwise none of its effects persist.
	// Implementations with optimistic concurrency may run fn more than once,
	// so fn must not leak state from an aborted attempt.
	Write(ctx context.Context, fn func(Tx) error) error
	// Close releases the store.
	Close() error
}

// Collect returns all records in ascending id order.
func Collect(tx Tx) ([]Record, error) {
	var recs []Record
	err := tx.Scan(func(r Record) bool {
		recs = append(recs, r)
		return true
	})
	return recs, err
}
