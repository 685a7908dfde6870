package classdb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/classdb"
	"github.com/hupe1980/classdb/blobstore"
	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/location"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/persistence"
	"github.com/hupe1980/classdb/registry"
	"github.com/hupe1980/classdb/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openDB(t *testing.T, opts ...classdb.Option) *classdb.DB {
	t.Helper()
	db, err := classdb.Open(t.Context(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func classes(names ...string) map[string][]byte {
	m := make(map[string][]byte, len(names))
	for _, n := range names {
		m[n] = []byte("bytes of " + n)
	}
	return m
}

func writeJar(t *testing.T, dir, name string, names ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.WriteJar(t, path, classes(names...))
	return path
}

func TestClasspath_FindClass(t *testing.T) {
	ctx := t.Context()
	db := openDB(t)

	a := location.NewMemorySource("/a.jar", false, classes("p.A", "p.q.B"))
	b := location.NewMemorySource("/b.jar", false, classes("p.A", "r.C"))

	cp, err := db.ClasspathOf(ctx, a.Location(), b.Location())
	require.NoError(t, err)
	defer cp.Close()

	require.Len(t, cp.Locations(), 2)
	first, second := cp.Locations()[0].ID, cp.Locations()[1].ID

	c, err := cp.FindClass("p.A")
	require.NoError(t, err)
	assert.Equal(t, min(first, second), c.Location())
	assert.Equal(t, "p.A", c.FullName())

	c, err = cp.FindClass("r.C")
	require.NoError(t, err)
	assert.Equal(t, second, c.Location())

	_, err = cp.FindClass("x.Missing")
	require.ErrorIs(t, err, location.ErrClassNotFound)

	data, err := cp.ClassBytes(ctx, "p.q.B")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes of p.q.B"), data)

	require.NoError(t, cp.Close())
	require.NoError(t, cp.Close())
	_, err = cp.FindClass("p.A")
	require.ErrorIs(t, err, registry.ErrSnapshotReleased)
}

func TestClasspath_SnapshotIsolation(t *testing.T) {
	ctx := t.Context()
	db := openDB(t)

	src := location.NewMemorySource("/app", false, classes("app.Main"))
	old, err := db.ClasspathOf(ctx, src.Location())
	require.NoError(t, err)
	oldID := old.Locations()[0].ID

	src.Put("app.Helper", []byte("helper"))
	res, err := db.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, []model.LocationID{oldID}, res.Superseded)
	assert.Empty(t, res.Deprecated, "old record is pinned by an open classpath")
	assert.Empty(t, res.Removed)
	newID := res.New[0].ID

	// The old classpath keeps its view.
	_, err = old.FindClass("app.Helper")
	require.ErrorIs(t, err, location.ErrClassNotFound)
	c, err := old.FindClass("app.Main")
	require.NoError(t, err)
	assert.Equal(t, oldID, c.Location())

	cur, err := db.ClasspathOf(ctx, src.Location())
	require.NoError(t, err)
	defer cur.Close()
	assert.Equal(t, newID, cur.Locations()[0].ID)
	c, err = cur.FindClass("app.Helper")
	require.NoError(t, err)
	assert.Equal(t, newID, c.Location())

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Deprecated)
	assert.Equal(t, 2, stats.LiveSnapshots)

	require.NoError(t, old.Close())

	stats, err = db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 0, stats.Deprecated)
	assert.Equal(t, 1, stats.LiveSnapshots)
	assert.Nil(t, db.Namespace().FindClass("app.Main", oldID))
}

func TestClasspath_VanishedLocation(t *testing.T) {
	ctx := t.Context()

	var removed []model.LocationID
	db := openDB(t, classdb.WithFeature("recorder", feature.HandlerFunc(func(_ context.Context, sig feature.Signal) error {
		if s, ok := sig.(feature.LocationRemoved); ok {
			removed = append(removed, s.Record.ID)
		}
		return nil
	})))

	jar := writeJar(t, t.TempDir(), "lib.jar", "lib.Cached", "lib.Uncached")

	cp, err := db.Classpath(ctx, jar)
	require.NoError(t, err)
	id := cp.Locations()[0].ID

	cached, err := cp.ClassBytes(ctx, "lib.Cached")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes of lib.Cached"), cached)

	require.NoError(t, os.Remove(jar))

	res, err := db.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.LocationID{id}, res.Vanished)
	assert.Empty(t, res.New)
	assert.Empty(t, res.Deprecated)

	// Name lookups stay stale for the open classpath.
	c, err := cp.FindClass("lib.Uncached")
	require.NoError(t, err)
	assert.Equal(t, id, c.Location())

	// Cached bytes are still served, everything else is unavailable.
	got, err := cp.ClassBytes(ctx, "lib.Cached")
	require.NoError(t, err)
	assert.Equal(t, cached, got)

	_, err = cp.ClassBytes(ctx, "lib.Uncached")
	require.ErrorIs(t, err, classdb.ErrLocationUnavailable)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheEntries)

	require.NoError(t, cp.Close())
	assert.Equal(t, []model.LocationID{id}, removed)

	stats, err = db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Records)
	assert.Equal(t, 0, stats.CacheEntries)
	assert.Equal(t, 0, stats.IndexedLocations)
}

func TestClasspath_VanishedWithoutCache(t *testing.T) {
	ctx := t.Context()
	db := openDB(t, classdb.WithClassCacheSize(0))

	jar := writeJar(t, t.TempDir(), "lib.jar", "lib.A")
	cp, err := db.Classpath(ctx, jar)
	require.NoError(t, err)
	defer cp.Close()

	_, err = cp.ClassBytes(ctx, "lib.A")
	require.NoError(t, err)

	require.NoError(t, os.Remove(jar))

	_, err = cp.ClassBytes(ctx, "lib.A")
	require.ErrorIs(t, err, classdb.ErrLocationUnavailable)
}

func TestClasspath_JarReplacedInPlace(t *testing.T) {
	for _, tc := range []struct {
		name      string
		cacheSize int64
		want      string // bytes the old classpath serves; empty means unavailable
	}{
		{name: "uncached", cacheSize: 0},
		{name: "cached", cacheSize: classdb.DefaultClassCacheSize, want: "v1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := t.Context()
			db := openDB(t, classdb.WithClassCacheSize(tc.cacheSize))

			jar := filepath.Join(t.TempDir(), "a.jar")
			testutil.WriteJar(t, jar, map[string][]byte{"p.A": []byte("v1")})
			past := time.Now().Add(-time.Hour)
			require.NoError(t, os.Chtimes(jar, past, past))

			old, err := db.Classpath(ctx, jar)
			require.NoError(t, err)
			defer old.Close()
			oldID := old.Locations()[0].ID

			b, err := old.ClassBytes(ctx, "p.A")
			require.NoError(t, err)
			require.Equal(t, "v1", string(b))

			testutil.WriteJar(t, jar, map[string][]byte{"p.A": []byte("v2-new-body")})
			res, err := db.Refresh(ctx)
			require.NoError(t, err)
			assert.Equal(t, []model.LocationID{oldID}, res.Superseded)
			require.Len(t, res.New, 1)

			c, err := old.FindClass("p.A")
			require.NoError(t, err)
			assert.Equal(t, oldID, c.Location())

			// The old classpath never sees the replacement's bytes.
			b, err = old.ClassBytes(ctx, "p.A")
			if tc.want == "" {
				require.ErrorIs(t, err, classdb.ErrLocationUnavailable)
				require.ErrorIs(t, err, location.ErrContentChanged)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, string(b))
			}

			cur, err := db.Classpath(ctx, jar)
			require.NoError(t, err)
			defer cur.Close()
			b, err = cur.ClassBytes(ctx, "p.A")
			require.NoError(t, err)
			assert.Equal(t, "v2-new-body", string(b))
		})
	}
}

func TestRuntimeBaseline(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	rt := writeJar(t, dir, "rt.jar", "java.lang.Object", "java.lang.String")
	app := writeJar(t, dir, "app.jar", "app.Main")

	db := openDB(t, classdb.WithRuntime(rt, filepath.Join(dir, "missing.jar")))
	require.Len(t, db.RuntimeLocations(), 1)
	rtID := db.RuntimeLocations()[0].ID

	cp, err := db.Classpath(ctx, app, filepath.Join(dir, "missing.jar"))
	require.NoError(t, err)
	defer cp.Close()

	require.Len(t, cp.Locations(), 2)
	assert.Equal(t, rtID, cp.Locations()[0].ID)
	assert.True(t, cp.Locations()[0].Location.Runtime())

	c, err := cp.FindClass("java.lang.String")
	require.NoError(t, err)
	assert.Equal(t, rtID, c.Location())

	records, err := db.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.StateProcessed, records[0].State)
	assert.Equal(t, model.StateProcessed, records[1].State)
}

func TestRuntimeBaseline_FollowsRefresh(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	rt := writeJar(t, dir, "rt.jar", "java.lang.Object")

	db := openDB(t, classdb.WithRuntime(rt))
	oldID := db.RuntimeLocations()[0].ID

	testutil.WriteJar(t, rt, classes("java.lang.Object", "java.lang.Record"))
	res, err := db.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, 2, res.Classes)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, oldID, res.Removed[0].ID)

	require.Len(t, db.RuntimeLocations(), 1)
	assert.Equal(t, res.New[0].ID, db.RuntimeLocations()[0].ID)

	cp, err := db.Classpath(ctx)
	require.NoError(t, err)
	defer cp.Close()
	_, err = cp.FindClass("java.lang.Record")
	require.NoError(t, err)
}

func TestReopen(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	jar := writeJar(t, dir, "lib.jar", "lib.A")

	open := func() (*classdb.DB, *blobstore.LocalStore) {
		store, err := blobstore.OpenLocalStore(filepath.Join(dir, "db"))
		require.NoError(t, err)
		db, err := classdb.Open(ctx, classdb.WithBlobStore(store, persistence.CompressionZSTD))
		require.NoError(t, err)
		return db, store
	}

	db, store := open()
	cp, err := db.Classpath(ctx, jar)
	require.NoError(t, err)
	id := cp.Locations()[0].ID
	require.NoError(t, cp.Close())
	require.NoError(t, db.Close())
	require.NoError(t, store.Close())

	db, store = open()
	defer store.Close()
	defer db.Close()

	records, err := db.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, model.StateProcessed, records[0].State)

	// The namespace is rebuilt for the reused record.
	cp, err = db.Classpath(ctx, jar)
	require.NoError(t, err)
	defer cp.Close()
	assert.Equal(t, id, cp.Locations()[0].ID)
	b, err := cp.ClassBytes(ctx, "lib.A")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes of lib.A"), b)
}

func TestOpen_ReclaimsDeprecated(t *testing.T) {
	ctx := t.Context()
	jar := writeJar(t, t.TempDir(), "lib.jar", "lib.A")
	store := persistence.NewMemory()
	defer store.Close()

	db, err := classdb.Open(ctx, classdb.WithPersistence(store))
	require.NoError(t, err)
	_, err = db.Classpath(ctx, jar) // left open on purpose
	require.NoError(t, err)

	testutil.WriteJar(t, jar, classes("lib.A", "lib.B"))
	res, err := db.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, res.Superseded, 1)
	assert.Empty(t, res.Removed)
	require.NoError(t, db.Close())

	db, err = classdb.Open(ctx, classdb.WithPersistence(store))
	require.NoError(t, err)
	defer db.Close()

	records, err := db.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Deprecated())
}

func TestBackgroundRefresh(t *testing.T) {
	ctx := t.Context()
	jar := writeJar(t, t.TempDir(), "lib.jar", "lib.A")

	db := openDB(t, classdb.WithWatch(20*time.Millisecond), classdb.WithRefreshInterval(time.Hour))

	cp, err := db.Classpath(ctx, jar)
	require.NoError(t, err)
	defer cp.Close()

	testutil.WriteJar(t, jar, classes("lib.A", "lib.B"))

	require.Eventually(t, func() bool {
		records, err := db.Records(ctx)
		if err != nil || len(records) != 2 {
			return false
		}
		return records[0].SupersededBy == records[1].ID
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMetrics(t *testing.T) {
	ctx := t.Context()
	metrics := &classdb.BasicMetricsCollector{}
	db := openDB(t, classdb.WithMetrics(metrics))

	src := location.NewMemorySource("/a.jar", false, classes("p.A"))
	cp, err := db.ClasspathOf(ctx, src.Location())
	require.NoError(t, err)

	_, err = cp.ClassBytes(ctx, "p.A")
	require.NoError(t, err)
	_, err = cp.ClassBytes(ctx, "p.A")
	require.NoError(t, err)
	_, err = cp.FindClass("p.Missing")
	require.Error(t, err)
	require.NoError(t, cp.Close())

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ClasspathCount)
	assert.Equal(t, int64(1), stats.IndexedClasses)
	assert.Equal(t, int64(2), stats.ClassBytesCount)
	assert.Equal(t, int64(1), stats.ClassBytesCached)
	assert.Equal(t, int64(3), stats.LookupCount)
	assert.Equal(t, int64(1), stats.LookupMisses)
}

func TestClose(t *testing.T) {
	ctx := t.Context()
	db, err := classdb.Open(ctx, classdb.WithRefreshInterval(10*time.Millisecond), classdb.WithWatch(0))
	require.NoError(t, err)

	src := location.NewMemorySource("/a.jar", false, classes("p.A"))
	cp, err := db.ClasspathOf(ctx, src.Location())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	require.NoError(t, cp.Close())

	_, err = db.ClasspathOf(ctx, src.Location())
	require.ErrorIs(t, err, classdb.ErrClosed)
	_, err = db.Refresh(ctx)
	require.ErrorIs(t, err, classdb.ErrClosed)
	_, err = db.Stats(ctx)
	require.ErrorIs(t, err, classdb.ErrClosed)
}
