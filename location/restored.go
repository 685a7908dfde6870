package location

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Restored is a location rebuilt from a persisted record. It knows only the
// path, runtime flag and hash that were stored; content access goes through
// the location currently found at the path, as long as its hash still matches.
type Restored struct {
	path    string
	runtime bool
	hash    string
}

// NewRestored creates a restored location.
func NewRestored(path string, runtime bool, hash string) *Restored {
	return &Restored{path: path, runtime: runtime, hash: hash}
}

func (r *Restored) Path() string          { return r.path }
func (r *Restored) Runtime() bool         { return r.runtime }
func (r *Restored) Hash() (string, error) { return r.hash, nil }

// IsChanged reports whether the location at the path has a different hash
// or disappeared.
func (r *Restored) IsChanged() bool {
	actual, err := r.Refreshed()
	if err != nil || actual == nil {
		return true
	}
	h, err := actual.Hash()
	if err != nil {
		return true
	}
	return h != r.hash
}

// Refreshed builds a location for the current content of the path.
func (r *Restored) Refreshed() (Location, error) {
	if _, err := os.Stat(r.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return FromPath(r.path, r.runtime)
}

// ClassNames lists the classes of the current content if it still matches the
// persisted hash.
func (r *Restored) ClassNames() ([]string, error) {
	actual, err := r.current()
	if err != nil {
		return nil, err
	}
	return actual.ClassNames()
}

// Resolve reads a class from the current content if it still matches the
// persisted hash.
func (r *Restored) Resolve(className string) ([]byte, error) {
	actual, err := r.current()
	if err != nil {
		return nil, err
	}
	return actual.Resolve(className)
}

func (r *Restored) String() string { return r.path }

func (r *Restored) current() (Location, error) {
	actual, err := r.Refreshed()
	if err != nil {
		return nil, err
	}
	if actual == nil {
		return nil, fmt.Errorf("%s: %w", r.path, fs.ErrNotExist)
	}
	h, err := actual.Hash()
	if err != nil {
		return nil, err
	}
	if h != r.hash {
		return nil, fmt.Errorf("%w: %s", ErrContentChanged, r.path)
	}
	return actual, nil
}
