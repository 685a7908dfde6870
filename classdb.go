package classdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/indexer"
	"github.com/hupe1980/classdb/internal/resource"
	"github.com/hupe1980/classdb/location"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/namespace"
	"github.com/hupe1980/classdb/persistence"
	"github.com/hupe1980/classdb/registry"
)

// DB is a persistent, snapshot-isolated index over classpath locations.
// It is safe for concurrent use.
type DB struct {
	logger  *Logger
	metrics MetricsCollector

	store     persistence.Persistence
	ownsStore bool

	tree     *namespace.Tree
	features *feature.Broadcaster
	registry *registry.Registry
	indexer  *indexer.Indexer
	rc       *resource.Controller
	cache    *classCache

	refreshMu sync.Mutex
	refresher *refresher

	unregister []func()
	closed     atomic.Bool
}

// RefreshResult is the outcome of DB.Refresh.
type RefreshResult struct {
	registry.RefreshResult
	// Classes is the number of classes indexed for new records.
	Classes int
	// Removed holds the records reclaimed by the cleanup following the
	// refresh.
	Removed []persistence.Record
}

// Stats is a point-in-time view of the database.
type Stats struct {
	Records          int
	Deprecated       int
	Processed        int
	LiveSnapshots    int
	IndexedLocations int
	CacheEntries     int
	CacheBytes       int64
	CacheHits        int64
	CacheMisses      int64
	MemoryUsage      int64
}

// Open opens a database. Without WithPersistence or WithBlobStore, records
// are kept in memory.
//
// Records deprecated by an earlier process are reclaimed, and the runtime
// baseline is registered and indexed, before Open returns.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	store, owns, err := openStore(ctx, o)
	if err != nil {
		return nil, err
	}

	db := &DB{
		logger:    o.logger,
		metrics:   o.metricsCollector,
		store:     store,
		ownsStore: owns,
		tree:      namespace.New(),
		features:  feature.NewBroadcaster(o.logger.Logger),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			MaxWorkers:         int64(o.indexWorkers),
			IOLimitBytesPerSec: o.ioLimit,
		}),
	}
	db.registry = registry.New(store, db.tree,
		registry.WithLogger(o.logger.Logger),
		registry.WithFeatures(db.features),
	)
	db.indexer = indexer.New(db.tree, db.registry,
		indexer.WithLogger(o.logger.Logger),
		indexer.WithResourceController(db.rc),
	)
	db.cache = newClassCache(o.classCacheSize, db.rc)

	db.unregister = append(db.unregister,
		db.features.Register("classdb.indexer", feature.HandlerFunc(db.forgetRemoved)),
	)
	if db.cache != nil {
		db.unregister = append(db.unregister, db.features.Register("classdb.classcache", db.cache))
	}
	for _, h := range o.handlers {
		db.unregister = append(db.unregister, db.features.Register(h.name, h.handler))
	}

	if _, err := db.Cleanup(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if len(o.runtime) > 0 {
		if err := db.setup(ctx, o.runtime); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if o.refreshInterval > 0 || o.watch {
		r, err := newRefresher(db, o)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		db.refresher = r
		r.track(db.registry.RuntimeLocations())
	}

	return db, nil
}

func openStore(ctx context.Context, o options) (persistence.Persistence, bool, error) {
	switch {
	case o.persistence != nil:
		return o.persistence, false, nil
	case o.blobStore != nil:
		p, err := persistence.Open(ctx, o.blobStore,
			persistence.WithLogger(o.logger.Logger),
			persistence.WithCompression(o.compression),
		)
		if err != nil {
			return nil, false, fmt.Errorf("classdb: open persistence: %w", err)
		}
		return p, true, nil
	default:
		return persistence.NewMemory(
			persistence.WithLogger(o.logger.Logger),
			persistence.WithCompression(o.compression),
		), true, nil
	}
}

func (db *DB) setup(ctx context.Context, paths []string) error {
	locs, err := location.FromPaths(location.FilterExisting(paths, db.logger.Logger), true)
	if err != nil {
		return err
	}
	res, err := db.registry.Setup(ctx, locs)
	if err != nil {
		return err
	}
	ix, err := db.indexer.Index(ctx, res.Registered)
	if err != nil {
		return err
	}
	db.logger.InfoContext(ctx, "runtime registered",
		"locations", len(res.Registered),
		"classes", ix.Classes,
	)
	return nil
}

func (db *DB) forgetRemoved(_ context.Context, sig feature.Signal) error {
	if s, ok := sig.(feature.LocationRemoved); ok {
		db.indexer.Forget(s.Record.ID)
	}
	return nil
}

// Classpath builds a classpath from jar, jmod and directory paths, preceded
// by the runtime baseline. Paths that do not exist are logged and skipped.
func (db *DB) Classpath(ctx context.Context, paths ...string) (*Classpath, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	locs, err := location.FromPaths(location.FilterExisting(paths, db.logger.Logger), false)
	if err != nil {
		return nil, err
	}
	return db.ClasspathOf(ctx, locs...)
}

// ClasspathOf builds a classpath from location handles, preceded by the
// runtime baseline. The returned classpath pins the records it resolves
// against until it is closed.
func (db *DB) ClasspathOf(ctx context.Context, locs ...location.Location) (*Classpath, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	rt := db.registry.RuntimeLocations()
	all := make([]location.Location, 0, len(rt)+len(locs))
	for _, l := range rt {
		all = append(all, l.Location)
	}
	all = append(all, locs...)

	cp, indexed, err := db.classpath(ctx, all)
	elapsed := time.Since(start)
	db.metrics.RecordClasspath(len(all), indexed, elapsed, err)
	if err != nil {
		db.logger.LogClasspath(ctx, "", len(all), indexed, elapsed, err)
		return nil, err
	}
	db.logger.LogClasspath(ctx, cp.Name(), len(cp.Locations()), indexed, elapsed, nil)
	return cp, nil
}

func (db *DB) classpath(ctx context.Context, locs []location.Location) (*Classpath, int, error) {
	snap, _, err := db.registry.Acquire(ctx, locs)
	if err != nil {
		return nil, 0, err
	}

	res, err := db.indexer.Index(ctx, snap.Locations())
	if err != nil {
		_, _ = db.registry.Release(context.WithoutCancel(ctx), snap)
		return nil, 0, err
	}

	if db.refresher != nil {
		db.refresher.track(snap.Locations())
	}
	return &Classpath{db: db, snap: snap}, res.Classes, nil
}

// Refresh detects changed locations, indexes the records created for them
// and reclaims records nobody references anymore.
func (db *DB) Refresh(ctx context.Context) (RefreshResult, error) {
	if db.closed.Load() {
		return RefreshResult{}, ErrClosed
	}

	db.refreshMu.Lock()
	defer db.refreshMu.Unlock()

	start := time.Now()
	res, err := db.refresh(ctx)
	db.metrics.RecordRefresh(len(res.New), len(res.Superseded)+len(res.Vanished), time.Since(start), err)
	db.logger.LogRefresh(ctx, res, err)
	return res, err
}

func (db *DB) refresh(ctx context.Context) (RefreshResult, error) {
	rr, err := db.registry.Refresh(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	res := RefreshResult{RefreshResult: rr}

	if len(rr.New) > 0 {
		ix, err := db.indexer.Index(ctx, rr.New)
		if err != nil {
			return res, err
		}
		res.Classes = ix.Classes
		if db.refresher != nil {
			db.refresher.track(rr.New)
		}
	}

	cl, err := db.Cleanup(ctx)
	res.Removed = cl.Removed
	return res, err
}

// Cleanup reclaims deprecated records that no classpath references.
func (db *DB) Cleanup(ctx context.Context) (registry.CleanupResult, error) {
	start := time.Now()
	res, err := db.registry.Cleanup(ctx)
	db.metrics.RecordCleanup(len(res.Removed), time.Since(start), err)
	db.logger.LogCleanup(ctx, len(res.Removed), err)
	return res, err
}

// Records returns all persisted location records in ascending id order.
func (db *DB) Records(ctx context.Context) ([]persistence.Record, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.registry.Records(ctx)
}

// RuntimeLocations returns the registered runtime baseline.
func (db *DB) RuntimeLocations() []model.RegisteredLocation {
	return db.registry.RuntimeLocations()
}

// Features returns the broadcaster of lifecycle signals.
func (db *DB) Features() *feature.Broadcaster {
	return db.features
}

// Namespace returns the namespace tree shared by all classpaths. Lookups
// on it are not scoped to any classpath.
func (db *DB) Namespace() *namespace.Tree {
	return db.tree
}

// Stats returns current database statistics.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	if db.closed.Load() {
		return Stats{}, ErrClosed
	}
	recs, err := db.registry.Records(ctx)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		Records:          len(recs),
		LiveSnapshots:    db.registry.LiveSnapshots(),
		IndexedLocations: db.indexer.Len(),
		MemoryUsage:      db.rc.MemoryUsage(),
	}
	for _, rec := range recs {
		if rec.Deprecated() {
			s.Deprecated++
		}
		if rec.State == model.StateProcessed {
			s.Processed++
		}
	}
	s.CacheEntries, s.CacheBytes, s.CacheHits, s.CacheMisses = db.cache.stats()
	return s, nil
}

// Close stops background refreshing, releases every open classpath and
// closes the persistence store if the DB opened it.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if db.refresher != nil {
		if err := db.refresher.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, fn := range db.unregister {
		fn()
	}
	if db.ownsStore {
		if err := db.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
