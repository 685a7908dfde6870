package classdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/classdb/internal/cache"
	"github.com/hupe1980/classdb/location"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/namespace"
	"github.com/hupe1980/classdb/registry"
)

// Classpath is a client session's view over a fixed set of location
// records. Lookups resolve only against the records pinned when the
// classpath was built, even if the locations change on disk afterwards.
//
// Close the classpath when done; this is what lets the DB reclaim records
// deprecated in the meantime.
type Classpath struct {
	db   *DB
	snap *registry.Snapshot
}

// Name returns the generated name of the underlying snapshot.
func (cp *Classpath) Name() string { return cp.snap.Name() }

// Locations returns the registered locations in classpath order.
func (cp *Classpath) Locations() []model.RegisteredLocation {
	return cp.snap.Locations()
}

// Contains reports whether id belongs to the classpath.
func (cp *Classpath) Contains(id model.LocationID) bool {
	return cp.snap.Contains(id)
}

// FindClass resolves a fully qualified class name. When several locations
// of the classpath define the class, the one with the lowest id wins.
func (cp *Classpath) FindClass(fqn string) (*namespace.Class, error) {
	if cp.snap.Released() {
		return nil, registry.ErrSnapshotReleased
	}
	start := time.Now()
	c := cp.db.tree.FindClassFunc(fqn, cp.snap.Contains)
	cp.db.metrics.RecordLookup(c != nil, time.Since(start))
	if c == nil {
		return nil, fmt.Errorf("%w: %s", location.ErrClassNotFound, fqn)
	}
	return c, nil
}

// ClassBytes returns the raw bytes of a class.
//
// Bytes are served from the class cache when possible. Otherwise they are
// read from the location; if that fails because the location vanished or
// changed, ErrLocationUnavailable is returned.
func (cp *Classpath) ClassBytes(ctx context.Context, fqn string) ([]byte, error) {
	start := time.Now()
	b, cached, err := cp.classBytes(ctx, fqn)
	cp.db.metrics.RecordClassBytes(cached, len(b), time.Since(start), err)
	return b, err
}

func (cp *Classpath) classBytes(ctx context.Context, fqn string) ([]byte, bool, error) {
	c, err := cp.FindClass(fqn)
	if err != nil {
		return nil, false, err
	}
	key := cache.Key{Location: c.Location(), Class: fqn}
	if b, ok := cp.db.cache.get(key); ok {
		return b, true, nil
	}

	loc, err := cp.db.registry.Location(ctx, c.Location())
	if err != nil {
		return nil, false, err
	}
	b, err := loc.Resolve(fqn)
	if err != nil {
		cp.db.logger.WithLocation(c.Location()).WarnContext(ctx, "class unavailable",
			"class", fqn,
			"path", loc.Path(),
			"error", err,
		)
		return nil, false, fmt.Errorf("%w: %s in %s: %w", ErrLocationUnavailable, fqn, loc.Path(), err)
	}
	if err := cp.db.rc.AcquireIO(ctx, len(b)); err != nil {
		return nil, false, err
	}

	cp.db.cache.set(key, b)
	return b, false, nil
}

// Close releases the classpath and reclaims records that became
// unreferenced. Closing twice is a no-op.
func (cp *Classpath) Close() error {
	if cp.snap.Released() {
		return nil
	}
	start := time.Now()
	res, err := cp.db.registry.Release(context.Background(), cp.snap)
	if errors.Is(err, registry.ErrClosed) {
		return nil
	}
	if len(res.Removed) > 0 || err != nil {
		cp.db.metrics.RecordCleanup(len(res.Removed), time.Since(start), err)
		cp.db.logger.LogCleanup(context.Background(), len(res.Removed), err)
	}
	return err
}
