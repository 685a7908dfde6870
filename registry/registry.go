package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/location"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/namespace"
	"github.com/hupe1980/classdb/persistence"
)

// RegistrationResult is the outcome of registering a batch of locations.
type RegistrationResult struct {
	// Registered holds every location of the batch in input order, except
	// those whose hash could not be computed.
	Registered []model.RegisteredLocation
	// Added holds the locations whose content still needs indexing: newly
	// created records and reused records that were never processed.
	Added []model.RegisteredLocation
}

// RefreshResult is the outcome of Refresh.
type RefreshResult struct {
	// New holds the records created for changed locations.
	New []model.RegisteredLocation
	// Superseded holds the ids linked to a replacement.
	Superseded []model.LocationID
	// Vanished holds the ids whose location disappeared.
	Vanished []model.LocationID
	// Deprecated holds the ids from Superseded and Vanished that no live
	// snapshot references; the next Cleanup reclaims them.
	Deprecated []model.LocationID
}

// CleanupResult is the outcome of Cleanup.
type CleanupResult struct {
	Removed []persistence.Record
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFeatures sets the broadcaster receiving lifecycle signals.
func WithFeatures(b *feature.Broadcaster) Option {
	return func(r *Registry) {
		if b != nil {
			r.features = b
		}
	}
}

// Registry manages location records and live snapshots.
type Registry struct {
	store    persistence.Persistence
	tree     *namespace.Tree
	features *feature.Broadcaster
	logger   *slog.Logger

	live    sync.Map // *Snapshot -> struct{}
	handles sync.Map // model.LocationID -> location.Location
	runtime atomic.Pointer[[]model.RegisteredLocation]
	closed  atomic.Bool
}

// New creates a registry over store. Cleanup removes reclaimed records from
// tree.
func New(store persistence.Persistence, tree *namespace.Tree, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		tree:   tree,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.features == nil {
		r.features = feature.NewBroadcaster(r.logger)
	}
	r.runtime.Store(&[]model.RegisteredLocation{})
	return r
}

// Features returns the broadcaster receiving lifecycle signals.
func (r *Registry) Features() *feature.Broadcaster { return r.features }

func (r *Registry) write(ctx context.Context, op string, fn func(persistence.Tx) error) error {
	err := r.store.Write(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInconsistentState) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func (r *Registry) read(ctx context.Context, op string, fn func(persistence.Tx) error) error {
	err := r.store.Read(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

type hashed struct {
	loc  location.Location
	hash string
}

// hashAll computes hashes outside of any transaction. Failing locations are
// logged and dropped.
func (r *Registry) hashAll(locs []location.Location) []hashed {
	out := make([]hashed, 0, len(locs))
	for _, loc := range locs {
		h, err := loc.Hash()
		if err != nil {
			r.logger.Warn("skipping unreadable location", "path", loc.Path(), "error", err)
			continue
		}
		out = append(out, hashed{loc: loc, hash: h})
	}
	return out
}

// liveByHash indexes the non-deprecated records by hash.
func liveByHash(tx persistence.Tx) (map[string]persistence.Record, error) {
	live, _, err := indexByHash(tx)
	return live, err
}

// indexByHash indexes the records by hash, live and deprecated apart. Of
// several deprecated records with one hash the newest wins.
func indexByHash(tx persistence.Tx) (live, deprecated map[string]persistence.Record, err error) {
	live = make(map[string]persistence.Record)
	deprecated = make(map[string]persistence.Record)
	err = tx.Scan(func(rec persistence.Record) bool {
		switch {
		case !rec.Deprecated():
			live[rec.Hash] = rec
		case rec.ID > deprecated[rec.Hash].ID:
			deprecated[rec.Hash] = rec
		}
		return true
	})
	return live, deprecated, err
}

// successor follows the SupersededBy chain from rec to its live end. ok is
// false when the chain ends in a vanished or deleted record.
func successor(tx persistence.Tx, rec persistence.Record) (persistence.Record, bool, error) {
	for rec.SupersededBy != 0 {
		next, ok, err := tx.Get(rec.SupersededBy)
		if err != nil || !ok {
			return persistence.Record{}, false, err
		}
		rec = next
	}
	return rec, !rec.Vanished, nil
}

func (r *Registry) register(tx persistence.Tx, batch []hashed) (RegistrationResult, error) {
	var res RegistrationResult

	byHash, deprecated, err := indexByHash(tx)
	if err != nil {
		return res, err
	}

	added := make(map[model.LocationID]bool)
	for _, h := range batch {
		loc := h.loc
		rec, ok := byHash[h.hash]
		if !ok {
			// A handle taken before a refresh still carries the superseded
			// hash. Its content is gone, so it resolves to the successor.
			if old, dep := deprecated[h.hash]; dep && loc.IsChanged() {
				succ, live, err := successor(tx, old)
				if err != nil {
					return res, err
				}
				if !live {
					r.logger.Warn("skipping vanished location", "path", loc.Path(), "id", old.ID)
					continue
				}
				rec, ok = succ, true
				loc = r.handle(succ)
			}
		}
		if !ok {
			id, err := tx.NextID()
			if err != nil {
				return res, err
			}
			rec = persistence.Record{
				ID:      id,
				Path:    loc.Path(),
				Hash:    h.hash,
				Runtime: loc.Runtime(),
				State:   model.StateInitial,
			}
			if err := tx.Put(rec); err != nil {
				return res, err
			}
			byHash[h.hash] = rec
		}

		rl := model.RegisteredLocation{ID: rec.ID, Location: loc}
		res.Registered = append(res.Registered, rl)
		if rec.State == model.StateInitial && !added[rec.ID] {
			added[rec.ID] = true
			res.Added = append(res.Added, rl)
		}
	}
	return res, nil
}

// remember keeps the first live handle per id; restored handles are
// replaced by live ones.
func (r *Registry) remember(locs []model.RegisteredLocation) {
	for _, l := range locs {
		prev, loaded := r.handles.LoadOrStore(l.ID, l.Location)
		if _, restored := prev.(*location.Restored); loaded && restored {
			r.handles.Store(l.ID, l.Location)
		}
	}
}

// RegisterIfNeeded registers locations, reusing the records of identical
// content. Deduplication and insertion happen in one transaction, so
// concurrent calls never create two records with the same hash.
func (r *Registry) RegisterIfNeeded(ctx context.Context, locs []location.Location) (RegistrationResult, error) {
	if r.closed.Load() {
		return RegistrationResult{}, ErrClosed
	}

	batch := r.hashAll(locs)

	var res RegistrationResult
	err := r.write(ctx, "register", func(tx persistence.Tx) error {
		var err error
		res, err = r.register(tx, batch)
		return err
	})
	if err != nil {
		return RegistrationResult{}, err
	}

	r.remember(res.Registered)
	r.logger.Debug("locations registered", "registered", len(res.Registered), "added", len(res.Added))
	return res, nil
}

// Setup registers the runtime baseline. Its locations become part of every
// later classpath through RuntimeLocations.
func (r *Registry) Setup(ctx context.Context, locs []location.Location) (RegistrationResult, error) {
	res, err := r.RegisterIfNeeded(ctx, locs)
	if err != nil {
		return res, err
	}
	rt := append([]model.RegisteredLocation(nil), res.Registered...)
	r.runtime.Store(&rt)
	return res, nil
}

// RuntimeLocations returns the registered runtime baseline.
func (r *Registry) RuntimeLocations() []model.RegisteredLocation {
	return append([]model.RegisteredLocation(nil), *r.runtime.Load()...)
}

// Acquire registers locs and pins the result in a new snapshot. The snapshot
// joins the live set before the registration transaction, so no cleanup can
// reclaim a reused record between registration and pinning.
func (r *Registry) Acquire(ctx context.Context, locs []location.Location) (*Snapshot, RegistrationResult, error) {
	if r.closed.Load() {
		return nil, RegistrationResult{}, ErrClosed
	}

	batch := r.hashAll(locs)

	snap := newSnapshot(r)
	r.live.Store(snap, struct{}{})

	var res RegistrationResult
	err := r.write(ctx, "acquire", func(tx persistence.Tx) error {
		var err error
		if res, err = r.register(tx, batch); err != nil {
			return err
		}
		snap.pin(res.Registered)
		return nil
	})
	if err != nil {
		snap.released.Store(true)
		r.live.Delete(snap)
		return nil, RegistrationResult{}, err
	}

	snap.locations = res.Registered
	snap.ready.Store(true)
	r.remember(res.Registered)
	r.logger.Debug("snapshot acquired", "snapshot", snap.name, "locations", len(res.Registered), "added", len(res.Added))
	return snap, res, nil
}

// NewSnapshot pins already registered locations in a new live snapshot.
func (r *Registry) NewSnapshot(locs []model.RegisteredLocation) *Snapshot {
	snap := newSnapshot(r)
	snap.locations = append([]model.RegisteredLocation(nil), locs...)
	snap.pin(snap.locations)
	snap.ready.Store(true)
	r.live.Store(snap, struct{}{})
	return snap
}

// Release removes snap from the live set and runs Cleanup. Releasing twice
// is a no-op.
func (r *Registry) Release(ctx context.Context, snap *Snapshot) (CleanupResult, error) {
	if !snap.released.CompareAndSwap(false, true) {
		return CleanupResult{}, nil
	}
	r.live.Delete(snap)
	r.logger.Debug("snapshot released", "snapshot", snap.name)

	if r.closed.Load() {
		return CleanupResult{}, nil
	}
	return r.Cleanup(ctx)
}

// LiveSnapshots returns the number of live snapshots.
func (r *Registry) LiveSnapshots() int {
	n := 0
	r.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// pinned returns the union of all live snapshot ids and the ids of ready
// snapshots, which must all be backed by records.
func (r *Registry) pinned() (all, ready *roaring64.Bitmap) {
	all, ready = roaring64.New(), roaring64.New()
	r.live.Range(func(k, _ any) bool {
		snap := k.(*Snapshot)
		all.Or(snap.bitmap())
		if snap.ready.Load() {
			ready.Or(snap.bitmap())
		}
		return true
	})
	return all, ready
}

// AfterProcessing marks the records of locs processed in one transaction and
// then broadcasts feature.AfterIndexing once with the locations whose state
// changed. Nothing is broadcast when all of them were processed already.
func (r *Registry) AfterProcessing(ctx context.Context, locs []model.RegisteredLocation) error {
	if len(locs) == 0 {
		return nil
	}

	var changed []model.RegisteredLocation
	err := r.write(ctx, "after processing", func(tx persistence.Tx) error {
		changed = changed[:0]
		var missing []model.LocationID
		for _, l := range locs {
			rec, ok, err := tx.Get(l.ID)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, l.ID)
				continue
			}
			if rec.State == model.StateProcessed {
				continue
			}
			rec.State = model.StateProcessed
			if err := tx.Put(rec); err != nil {
				return err
			}
			changed = append(changed, l)
		}
		if len(missing) > 0 {
			return newInconsistentStateError(missing)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInconsistentState) {
			r.logger.Error("processed locations without record", "error", err)
		}
		return err
	}

	if len(changed) == 0 {
		return nil
	}
	if err := r.features.Broadcast(ctx, feature.AfterIndexing{Locations: changed}); err != nil {
		r.logger.Warn("after indexing handlers failed", "error", err)
	}
	return nil
}

// Records returns all persisted records in ascending id order.
func (r *Registry) Records(ctx context.Context) ([]persistence.Record, error) {
	var recs []persistence.Record
	err := r.read(ctx, "records", func(tx persistence.Tx) error {
		var err error
		recs, err = persistence.Collect(tx)
		return err
	})
	return recs, err
}

// Record returns the record with the given id.
func (r *Registry) Record(ctx context.Context, id model.LocationID) (persistence.Record, bool, error) {
	var (
		rec persistence.Record
		ok  bool
	)
	err := r.read(ctx, "record", func(tx persistence.Tx) error {
		var err error
		rec, ok, err = tx.Get(id)
		return err
	})
	return rec, ok, err
}

// Location returns the live handle of id. Records persisted by an earlier
// process get a location.Restored handle.
func (r *Registry) Location(ctx context.Context, id model.LocationID) (location.Location, error) {
	if v, ok := r.handles.Load(id); ok {
		return v.(location.Location), nil
	}
	rec, ok, err := r.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newInconsistentStateError([]model.LocationID{id})
	}
	return r.handle(rec), nil
}

func (r *Registry) handle(rec persistence.Record) location.Location {
	if v, ok := r.handles.Load(rec.ID); ok {
		return v.(location.Location)
	}
	v, _ := r.handles.LoadOrStore(rec.ID, location.NewRestored(rec.Path, rec.Runtime, rec.Hash))
	return v.(location.Location)
}

// Close releases every live snapshot. The persistence store is owned by the
// caller.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.live.Range(func(k, _ any) bool {
		snap := k.(*Snapshot)
		snap.released.Store(true)
		r.live.Delete(snap)
		return true
	})
	return nil
}
