package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/classdb/model"
)

var (
	// ErrPersistence wraps every failed persistence transaction.
	ErrPersistence = errors.New("registry: persistence failure")

	// ErrInconsistentState is reported when a live snapshot references an id
	// without a backing record.
	ErrInconsistentState = errors.New("registry: inconsistent state")

	// ErrSnapshotReleased is returned when a released snapshot is used.
	ErrSnapshotReleased = errors.New("registry: snapshot released")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry: closed")
)

// InconsistentStateError lists the ids found without backing records.
type InconsistentStateError struct {
	IDs []model.LocationID
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%v: no record for %v", ErrInconsistentState, e.IDs)
}

// Is reports whether target is ErrInconsistentState.
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

func newInconsistentStateError(ids []model.LocationID) *InconsistentStateError {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return &InconsistentStateError{IDs: ids}
}
