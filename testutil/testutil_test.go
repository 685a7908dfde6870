package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/classdb/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassNames(t *testing.T) {
	rng := NewRNG(4711)

	names := rng.ClassNames(50, 3)

	assert.Len(t, names, 50)
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
		parts := strings.Split(n, ".")
		assert.GreaterOrEqual(t, len(parts), 2)
		assert.LessOrEqual(t, len(parts), 4)
	}

	assert.Equal(t, names, NewRNG(4711).ClassNames(50, 3))
}

func TestFaultyStore(t *testing.T) {
	ctx := context.Background()
	store := NewFaultyStore(blobstore.NewMemoryStore())

	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	assert.Equal(t, 1, store.Puts())

	store.AddRule("CURRENT", Fault{FailPut: true})
	assert.ErrorIs(t, store.Put(ctx, "CURRENT", []byte("x")), ErrInjected)
	require.NoError(t, store.Put(ctx, "b", []byte("2")))

	store.AddRule("a", Fault{FailOpen: true, FailDelete: true})
	_, err := store.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrInjected)
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrInjected)

	store.ClearRules()
	data, err := blobstore.ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}
