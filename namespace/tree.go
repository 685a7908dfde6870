package namespace

import (
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/classdb/model"
)

// Class is the entry of one class name under one location id.
type Class struct {
	name     string
	pkg      *Package
	location model.LocationID
}

// Name returns the simple class name.
func (c *Class) Name() string { return c.name }

// Package returns the owning package.
func (c *Class) Package() *Package { return c.pkg }

// Location returns the id of the owning location.
func (c *Class) Location() model.LocationID { return c.location }

// FullName returns the fully qualified class name.
func (c *Class) FullName() string {
	if pkg := c.pkg.FullName(); pkg != "" {
		return pkg + "." + c.name
	}
	return c.name
}

// slot holds all entries of one simple name within a package.
type slot struct {
	mu      sync.RWMutex
	ids     []model.LocationID // ascending
	entries map[model.LocationID]*Class
}

func (s *slot) put(c *Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[c.location]; !ok {
		i, _ := slices.BinarySearch(s.ids, c.location)
		s.ids = slices.Insert(s.ids, i, c.location)
	}
	s.entries[c.location] = c
}

func (s *slot) get(id model.LocationID) *Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *slot) first(pred func(model.LocationID) bool) *Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.ids {
		if pred(id) {
			return s.entries[id]
		}
	}
	return nil
}

func (s *slot) remove(id model.LocationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	if i, found := slices.BinarySearch(s.ids, id); found {
		s.ids = slices.Delete(s.ids, i, i+1)
	}
	return true
}

func (s *slot) has(id model.LocationID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

func (s *slot) empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids) == 0
}

// Package is a node of the tree.
type Package struct {
	name     string
	parent   *Package
	children sync.Map // string -> *Package
	classes  sync.Map // simple name -> *slot
}

// Name returns the last segment of the package name; empty for the root.
func (p *Package) Name() string { return p.name }

// Parent returns the enclosing package; nil for the root.
func (p *Package) Parent() *Package { return p.parent }

// FullName returns the dotted package name; empty for the root.
func (p *Package) FullName() string {
	if p.parent == nil {
		return ""
	}
	var segs []string
	for n := p; n.parent != nil; n = n.parent {
		segs = append(segs, n.name)
	}
	slices.Reverse(segs)
	return strings.Join(segs, ".")
}

// Child returns the direct subpackage with the given name, or nil.
func (p *Package) Child(name string) *Package {
	if v, ok := p.children.Load(name); ok {
		return v.(*Package)
	}
	return nil
}

// Children returns the direct subpackages sorted by name.
func (p *Package) Children() []*Package {
	var out []*Package
	p.children.Range(func(_, v any) bool {
		out = append(out, v.(*Package))
		return true
	})
	slices.SortFunc(out, func(a, b *Package) int { return strings.Compare(a.name, b.name) })
	return out
}

// ClassNames returns the sorted simple names with at least one entry.
func (p *Package) ClassNames() []string {
	var out []string
	p.classes.Range(func(k, v any) bool {
		if !v.(*slot).empty() {
			out = append(out, k.(string))
		}
		return true
	})
	slices.Sort(out)
	return out
}

// Class returns the entry of name under id, or nil.
func (p *Package) Class(name string, id model.LocationID) *Class {
	if s := p.slot(name); s != nil {
		return s.get(id)
	}
	return nil
}

// Visit traverses p and its subpackages in pre-order. Returning false from
// the visitor skips the subpackages of that node.
func (p *Package) Visit(v Visitor) {
	if !v.VisitPackage(p) {
		return
	}
	for _, c := range p.Children() {
		c.Visit(v)
	}
}

func (p *Package) child(name string) *Package {
	if c := p.Child(name); c != nil {
		return c
	}
	v, _ := p.children.LoadOrStore(name, &Package{name: name, parent: p})
	return v.(*Package)
}

func (p *Package) slot(name string) *slot {
	if v, ok := p.classes.Load(name); ok {
		return v.(*slot)
	}
	return nil
}

func (p *Package) slotOrCreate(name string) *slot {
	if s := p.slot(name); s != nil {
		return s
	}
	v, _ := p.classes.LoadOrStore(name, &slot{entries: make(map[model.LocationID]*Class)})
	return v.(*slot)
}

// Visitor is called for every package during a traversal.
type Visitor interface {
	VisitPackage(p *Package) bool
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(p *Package) bool

// VisitPackage calls f.
func (f VisitorFunc) VisitPackage(p *Package) bool { return f(p) }

// Tree is the namespace index. The zero value is not usable; use New.
type Tree struct {
	root *Package
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{root: &Package{}}
}

// Root returns the root (default) package.
func (t *Tree) Root() *Package { return t.root }

// SplitName splits a fully qualified class name into package segments and
// the simple name. Both '.' and '/' separate segments.
func SplitName(fqn string) ([]string, string) {
	fqn = strings.ReplaceAll(fqn, "/", ".")
	i := strings.LastIndexByte(fqn, '.')
	if i < 0 {
		return nil, fqn
	}
	return strings.Split(fqn[:i], "."), fqn[i+1:]
}

// AddClass inserts the entry of fqn under id, creating missing packages.
// An existing entry for the same name and id is replaced.
func (t *Tree) AddClass(fqn string, id model.LocationID) *Class {
	segs, name := SplitName(fqn)

	pkg := t.root
	for _, s := range segs {
		pkg = pkg.child(s)
	}

	c := &Class{name: name, pkg: pkg, location: id}
	pkg.slotOrCreate(name).put(c)
	return c
}

// FindPackage descends along segments without creating nodes. No segments
// yields the root.
func (t *Tree) FindPackage(segments ...string) *Package {
	pkg := t.root
	for _, s := range segments {
		if pkg = pkg.Child(s); pkg == nil {
			return nil
		}
	}
	return pkg
}

func (t *Tree) findSlot(fqn string) *slot {
	segs, name := SplitName(fqn)
	pkg := t.FindPackage(segs...)
	if pkg == nil {
		return nil
	}
	return pkg.slot(name)
}

// FindClass returns the entry of fqn under exactly id, or nil.
func (t *Tree) FindClass(fqn string, id model.LocationID) *Class {
	if s := t.findSlot(fqn); s != nil {
		return s.get(id)
	}
	return nil
}

// FindClassFunc returns the entry of fqn with the lowest id satisfying pred,
// or nil. The result is deterministic for a fixed set of matching ids.
func (t *Tree) FindClassFunc(fqn string, pred func(model.LocationID) bool) *Class {
	if s := t.findSlot(fqn); s != nil {
		return s.first(pred)
	}
	return nil
}

// RemoveLocation drops every entry owned by id and returns how many were
// removed. Packages are kept.
func (t *Tree) RemoveLocation(id model.LocationID) int {
	removed := 0
	t.Visit(VisitorFunc(func(p *Package) bool {
		p.classes.Range(func(_, v any) bool {
			if v.(*slot).remove(id) {
				removed++
			}
			return true
		})
		return true
	}))
	return removed
}

// Classes returns the number of entries owned by id.
func (t *Tree) Classes(id model.LocationID) int {
	n := 0
	t.Visit(VisitorFunc(func(p *Package) bool {
		p.classes.Range(func(_, v any) bool {
			if v.(*slot).has(id) {
				n++
			}
			return true
		})
		return true
	}))
	return n
}

// Visit traverses the whole tree in pre-order starting at the root.
func (t *Tree) Visit(v Visitor) {
	t.root.Visit(v)
}
