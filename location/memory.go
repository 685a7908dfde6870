package location

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnreadable is returned by a MemorySource that was marked unreadable.
var ErrUnreadable = errors.New("location unreadable")

// MemorySource is the mutable "disk" behind Memory locations.
// It is safe for concurrent use.
type MemorySource struct {
	path    string
	runtime bool

	mu         sync.RWMutex
	classes    map[string][]byte
	removed    bool
	unreadable bool
}

// NewMemorySource creates an in-memory source with the given classes.
func NewMemorySource(path string, runtime bool, classes map[string][]byte) *MemorySource {
	if classes == nil {
		classes = make(map[string][]byte)
	}
	return &MemorySource{path: path, runtime: runtime, classes: maps.Clone(classes)}
}

// Put adds or replaces a class.
func (s *MemorySource) Put(className string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[className] = slices.Clone(b)
	s.removed = false
}

// Delete removes a class.
func (s *MemorySource) Delete(className string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.classes, className)
}

// Remove simulates deletion of the whole location.
func (s *MemorySource) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
}

// SetUnreadable makes hashing fail until cleared.
func (s *MemorySource) SetUnreadable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreadable = v
}

// Location captures the current content as an immutable handle.
func (s *MemorySource) Location() *Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := &Memory{src: s, classes: maps.Clone(s.classes)}
	if s.unreadable {
		m.hashErr = fmt.Errorf("%w: %s", ErrUnreadable, s.path)
	} else {
		m.hash = hashClasses(s.path, m.classes)
	}
	return m
}

func (s *MemorySource) currentHash() (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.removed {
		return "", false, nil
	}
	if s.unreadable {
		return "", true, fmt.Errorf("%w: %s", ErrUnreadable, s.path)
	}
	return hashClasses(s.path, s.classes), true, nil
}

// Memory is an immutable in-memory location handle.
// Readers keep seeing the classes it was created with even after the
// MemorySource changes.
type Memory struct {
	src     *MemorySource
	classes map[string][]byte
	hash    string
	hashErr error
}

func (m *Memory) Path() string          { return m.src.path }
func (m *Memory) Runtime() bool         { return m.src.runtime }
func (m *Memory) Hash() (string, error) { return m.hash, m.hashErr }

// Source returns the backing source.
func (m *Memory) Source() *MemorySource { return m.src }

// IsChanged reports whether the source content differs from this handle.
func (m *Memory) IsChanged() bool {
	if m.hashErr != nil {
		return true
	}
	h, exists, err := m.src.currentHash()
	if err != nil || !exists {
		return true
	}
	return h != m.hash
}

// Refreshed returns a handle for the current source content, or nil if the
// source was removed.
func (m *Memory) Refreshed() (Location, error) {
	_, exists, err := m.src.currentHash()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return m.src.Location(), nil
}

func (m *Memory) ClassNames() ([]string, error) {
	names := slices.Collect(maps.Keys(m.classes))
	slices.Sort(names)
	return names, nil
}

func (m *Memory) Resolve(className string) ([]byte, error) {
	b, ok := m.classes[className]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrClassNotFound, className, m.src.path)
	}
	return slices.Clone(b), nil
}

func (m *Memory) String() string { return "memory:" + m.src.path }
