package namespace

import (
	"sync"
	"testing"

	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func in(ids ...model.LocationID) func(model.LocationID) bool {
	return func(id model.LocationID) bool {
		for _, x := range ids {
			if x == id {
				return true
			}
		}
		return false
	}
}

func TestTree_AddFind(t *testing.T) {
	tree := New()

	c := tree.AddClass("java.lang.String", 1)
	assert.Equal(t, "String", c.Name())
	assert.Equal(t, "java.lang.String", c.FullName())
	assert.Equal(t, model.LocationID(1), c.Location())
	assert.Equal(t, "java.lang", c.Package().FullName())

	assert.Same(t, c, tree.FindClass("java.lang.String", 1))
	assert.Same(t, c, tree.FindClass("java/lang/String", 1))
	assert.Nil(t, tree.FindClass("java.lang.String", 2))
	assert.Nil(t, tree.FindClass("java.lang.Object", 1))
	assert.Nil(t, tree.FindClass("javax.lang.String", 1))

	top := tree.AddClass("Main", 3)
	assert.Same(t, tree.Root(), top.Package())
	assert.Equal(t, "Main", top.FullName())
}

func TestTree_OverwriteSameID(t *testing.T) {
	tree := New()

	first := tree.AddClass("a.B", 1)
	second := tree.AddClass("a.B", 1)

	assert.NotSame(t, first, second)
	assert.Same(t, second, tree.FindClass("a.B", 1))
	assert.Equal(t, 1, tree.Classes(1))
}

func TestTree_FindClassFunc(t *testing.T) {
	tree := New()
	tree.AddClass("a.B", 9)
	tree.AddClass("a.B", 4)
	tree.AddClass("a.B", 6)

	assert.Equal(t, model.LocationID(4), tree.FindClassFunc("a.B", in(4, 6, 9)).Location())
	assert.Equal(t, model.LocationID(6), tree.FindClassFunc("a.B", in(9, 6)).Location())
	assert.Nil(t, tree.FindClassFunc("a.B", in(1, 2)))
	assert.Nil(t, tree.FindClassFunc("a.C", in(4)))

	for range 10 {
		assert.Equal(t, model.LocationID(6), tree.FindClassFunc("a.B", in(6, 9)).Location())
	}
}

func TestTree_FindPackage(t *testing.T) {
	tree := New()
	tree.AddClass("com.acme.util.Strings", 2)

	pkg := tree.FindPackage("com", "acme")
	require.NotNil(t, pkg)
	assert.Equal(t, "acme", pkg.Name())
	assert.Equal(t, "com.acme", pkg.FullName())
	assert.Equal(t, "com", pkg.Parent().FullName())
	assert.Same(t, tree.Root(), tree.FindPackage())

	assert.Nil(t, tree.FindPackage("com", "other"))
	// Lookups never create nodes.
	assert.Nil(t, tree.FindPackage("com", "other"))
	assert.Len(t, tree.FindPackage("com").Children(), 1)
}

func TestTree_RemoveLocation(t *testing.T) {
	tree := New()
	tree.AddClass("a.B", 1)
	tree.AddClass("a.B", 2)
	tree.AddClass("a.c.D", 1)
	tree.AddClass("x.Y", 2)

	assert.Equal(t, 2, tree.RemoveLocation(1))
	assert.Equal(t, 0, tree.RemoveLocation(1))

	assert.Nil(t, tree.FindClass("a.B", 1))
	assert.NotNil(t, tree.FindClass("a.B", 2))
	assert.Nil(t, tree.FindClass("a.c.D", 1))
	assert.Equal(t, 0, tree.Classes(1))
	assert.Equal(t, 2, tree.Classes(2))

	// Emptied packages stay and can be repopulated.
	pkg := tree.FindPackage("a", "c")
	require.NotNil(t, pkg)
	assert.Empty(t, pkg.ClassNames())

	tree.AddClass("a.c.D", 3)
	assert.Same(t, pkg, tree.FindClass("a.c.D", 3).Package())
	assert.Equal(t, []string{"D"}, pkg.ClassNames())
}

func TestTree_Visit(t *testing.T) {
	tree := New()
	tree.AddClass("b.X", 1)
	tree.AddClass("a.z.Y", 1)
	tree.AddClass("a.Y", 1)

	var order []string
	tree.Visit(VisitorFunc(func(p *Package) bool {
		order = append(order, p.FullName())
		return true
	}))
	assert.Equal(t, []string{"", "a", "a.z", "b"}, order)

	order = nil
	tree.Visit(VisitorFunc(func(p *Package) bool {
		order = append(order, p.FullName())
		return p.Name() != "a"
	}))
	assert.Equal(t, []string{"", "a", "b"}, order)
}

func TestTree_ConcurrentInsert(t *testing.T) {
	tree := New()
	names := testutil.NewRNG(42).ClassNames(200, 3)

	const indexers = 8

	var wg sync.WaitGroup
	for i := range indexers {
		wg.Add(1)
		go func(id model.LocationID) {
			defer wg.Done()
			for _, n := range names {
				tree.AddClass(n, id)
			}
		}(model.LocationID(i + 1))
	}
	wg.Wait()

	for _, n := range names {
		for i := range indexers {
			id := model.LocationID(i + 1)
			c := tree.FindClass(n, id)
			require.NotNil(t, c, "%s@%d", n, id)
			assert.Equal(t, n, c.FullName())
		}
		assert.Equal(t, model.LocationID(1), tree.FindClassFunc(n, func(model.LocationID) bool { return true }).Location())
	}

	// Concurrent creators converged to one node per package.
	seen := make(map[string]bool)
	tree.Visit(VisitorFunc(func(p *Package) bool {
		assert.False(t, seen[p.FullName()], "duplicate package %q", p.FullName())
		seen[p.FullName()] = true
		return true
	}))
}

func TestTree_ConcurrentInsertRemove(t *testing.T) {
	tree := New()
	names := testutil.NewRNG(7).ClassNames(100, 2)
	for _, n := range names {
		tree.AddClass(n, 1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, n := range names {
			tree.AddClass(n, 2)
		}
	}()
	go func() {
		defer wg.Done()
		tree.RemoveLocation(1)
	}()
	wg.Wait()

	assert.Equal(t, 0, tree.Classes(1))
	assert.Equal(t, len(names), tree.Classes(2))
}
