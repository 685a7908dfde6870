package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/classdb/blobstore"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, p Persistence, path, hash string) Record {
	t.Helper()
	var rec Record
	err := p.Write(context.Background(), func(tx Tx) error {
		id, err := tx.NextID()
		if err != nil {
			return err
		}
		rec = Record{ID: id, Path: path, Hash: hash}
		return tx.Put(rec)
	})
	require.NoError(t, err)
	return rec
}

func all(t *testing.T, p Persistence) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, p.Read(context.Background(), func(tx Tx) error {
		var err error
		recs, err = Collect(tx)
		return err
	}))
	return recs
}

func TestRecord_Deprecated(t *testing.T) {
	assert.False(t, Record{ID: 1}.Deprecated())
	assert.True(t, Record{ID: 1, SupersededBy: 2}.Deprecated())
	assert.True(t, Record{ID: 1, Vanished: true}.Deprecated())
}

func TestBlobPersistence_WriteRead(t *testing.T) {
	p := NewMemory()
	defer p.Close()

	a := insert(t, p, "/a.jar", "h1")
	b := insert(t, p, "/b.jar", "h2")
	assert.Equal(t, model.LocationID(1), a.ID)
	assert.Equal(t, model.LocationID(2), b.ID)
	assert.Equal(t, uint64(2), p.Version())

	recs := all(t, p)
	require.Len(t, recs, 2)
	assert.Equal(t, "/a.jar", recs[0].Path)
	assert.Equal(t, "/b.jar", recs[1].Path)

	require.NoError(t, p.Read(context.Background(), func(tx Tx) error {
		r, ok, err := tx.Get(b.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, b, r)

		_, ok, err = tx.Get(42)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestBlobPersistence_ReadOnly(t *testing.T) {
	p := NewMemory()

	err := p.Read(context.Background(), func(tx Tx) error {
		assert.ErrorIs(t, tx.Put(Record{ID: 1}), ErrReadOnlyTx)
		assert.ErrorIs(t, tx.Delete(1), ErrReadOnlyTx)
		_, err := tx.NextID()
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnlyTx)

	err = p.Write(context.Background(), func(tx Tx) error {
		return tx.Put(Record{Path: "/x"})
	})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestBlobPersistence_Rollback(t *testing.T) {
	p := NewMemory()
	insert(t, p, "/a.jar", "h1")

	boom := errors.New("boom")
	err := p.Write(context.Background(), func(tx Tx) error {
		id, err := tx.NextID()
		require.NoError(t, err)
		require.NoError(t, tx.Put(Record{ID: id, Path: "/b.jar"}))
		require.NoError(t, tx.Delete(1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	recs := all(t, p)
	require.Len(t, recs, 1)
	assert.Equal(t, "/a.jar", recs[0].Path)
	assert.Equal(t, uint64(1), p.Version())

	// Discarded ids are handed out again only because nothing committed them.
	b := insert(t, p, "/b.jar", "h2")
	assert.Equal(t, model.LocationID(2), b.ID)
}

func TestBlobPersistence_NoopWrite(t *testing.T) {
	store := testutil.NewFaultyStore(blobstore.NewMemoryStore())
	p, err := Open(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, p.Write(context.Background(), func(tx Tx) error {
		return tx.Delete(99)
	}))
	assert.Equal(t, 0, store.Puts())
	assert.Equal(t, uint64(0), p.Version())
}

func TestBlobPersistence_Reopen(t *testing.T) {
	ctx := context.Background()

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()

			p, err := Open(ctx, store, WithCompression(c))
			require.NoError(t, err)
			for range 50 {
				insert(t, p, "/repo/org/acme/lib/1.0/lib-1.0.jar", "0123456789abcdef")
			}
			require.NoError(t, p.Write(ctx, func(tx Tx) error {
				r, _, _ := tx.Get(3)
				r.State = model.StateProcessed
				r.SupersededBy = 7
				r.Runtime = true
				if err := tx.Put(r); err != nil {
					return err
				}
				r4, _, _ := tx.Get(4)
				r4.Vanished = true
				return tx.Put(r4)
			}))
			want := all(t, p)
			require.NoError(t, p.Close())

			reopened, err := Open(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, want, all(t, reopened))

			r3 := all(t, reopened)[2]
			assert.Equal(t, model.StateProcessed, r3.State)
			assert.Equal(t, model.LocationID(7), r3.SupersededBy)
			assert.True(t, r3.Runtime)
			assert.True(t, all(t, reopened)[3].Vanished)

			// The sequence survives the restart.
			next := insert(t, reopened, "/new.jar", "h")
			assert.Equal(t, model.LocationID(51), next.ID)

			// Only the committed table is kept.
			names, err := store.List(ctx, TableFileName)
			require.NoError(t, err)
			assert.Equal(t, []string{tableName(reopened.Version())}, names)
		})
	}
}

func TestBlobPersistence_FailedCommit(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFaultyStore(blobstore.NewMemoryStore())

	p, err := Open(ctx, store)
	require.NoError(t, err)
	insert(t, p, "/a.jar", "h1")

	store.AddRule(CurrentFileName, testutil.Fault{FailPut: true})
	err = p.Write(ctx, func(tx Tx) error {
		return tx.Put(Record{ID: 5, Path: "/b.jar"})
	})
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Len(t, all(t, p), 1)

	store.ClearRules()
	store.AddRule(TableFileName, testutil.Fault{FailPut: true})
	err = p.Write(ctx, func(tx Tx) error {
		return tx.Put(Record{ID: 5, Path: "/b.jar"})
	})
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Len(t, all(t, p), 1)

	store.ClearRules()
	reopened, err := Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, all(t, p), all(t, reopened))
	assert.Equal(t, p.Version(), reopened.Version())
}

func TestBlobPersistence_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	p, err := Open(ctx, store)
	require.NoError(t, err)
	insert(t, p, "/a.jar", "h1")

	name := tableName(p.Version())
	data, err := blobstore.ReadAll(ctx, store, name)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, store.Put(ctx, name, data))

	_, err = Open(ctx, store)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, store.Put(ctx, CurrentFileName, []byte("garbage")))
	_, err = Open(ctx, store)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBlobPersistence_Closed(t *testing.T) {
	p := NewMemory()
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Read(context.Background(), func(Tx) error { return nil }), ErrClosed)
	assert.ErrorIs(t, p.Write(context.Background(), func(Tx) error { return nil }), ErrClosed)
}

func TestBlobPersistence_Cancelled(t *testing.T) {
	p := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Write(ctx, func(Tx) error { return nil }), context.Canceled)
}
