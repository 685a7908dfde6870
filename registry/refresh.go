package registry

import (
	"context"
	"slices"

	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/location"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/persistence"
)

type change struct {
	old         persistence.Record
	replacement location.Location // nil if the location vanished
	hash        string
}

// Refresh checks every non-deprecated record for changed content. Changed
// records are linked to a replacement record, or marked vanished when their
// location disappeared. All linking happens in one transaction.
//
// A location that cannot be read is logged and treated as unchanged.
func (r *Registry) Refresh(ctx context.Context) (RefreshResult, error) {
	if r.closed.Load() {
		return RefreshResult{}, ErrClosed
	}

	var current []persistence.Record
	err := r.read(ctx, "refresh", func(tx persistence.Tx) error {
		current = current[:0]
		return tx.Scan(func(rec persistence.Record) bool {
			if !rec.Deprecated() {
				current = append(current, rec)
			}
			return true
		})
	})
	if err != nil {
		return RefreshResult{}, err
	}

	var changes []change
	for _, rec := range current {
		if err := ctx.Err(); err != nil {
			return RefreshResult{}, err
		}
		handle := r.handle(rec)
		if !handle.IsChanged() {
			continue
		}

		repl, err := handle.Refreshed()
		if err != nil {
			r.logger.Warn("refresh: location unreadable", "id", rec.ID, "path", rec.Path, "error", err)
			continue
		}
		c := change{old: rec, replacement: repl}
		if repl != nil {
			if c.hash, err = repl.Hash(); err != nil {
				r.logger.Warn("refresh: location unreadable", "id", rec.ID, "path", rec.Path, "error", err)
				continue
			}
		}
		changes = append(changes, c)
	}
	if len(changes) == 0 {
		return RefreshResult{}, nil
	}

	var res RefreshResult
	err = r.write(ctx, "refresh", func(tx persistence.Tx) error {
		res = RefreshResult{}

		byHash, err := liveByHash(tx)
		if err != nil {
			return err
		}
		pinned, _ := r.pinned()

		for _, c := range changes {
			old, ok, err := tx.Get(c.old.ID)
			if err != nil {
				return err
			}
			if !ok || old.Deprecated() {
				// Handled by a concurrent refresh.
				continue
			}

			if c.replacement == nil {
				old.Vanished = true
				res.Vanished = append(res.Vanished, old.ID)
			} else {
				succ, exists := byHash[c.hash]
				if !exists || succ.ID == old.ID {
					id, err := tx.NextID()
					if err != nil {
						return err
					}
					succ = persistence.Record{
						ID:      id,
						Path:    c.replacement.Path(),
						Hash:    c.hash,
						Runtime: c.replacement.Runtime(),
						State:   model.StateInitial,
					}
					if err := tx.Put(succ); err != nil {
						return err
					}
					byHash[c.hash] = succ
					res.New = append(res.New, model.RegisteredLocation{ID: id, Location: c.replacement})
				}
				old.SupersededBy = succ.ID
				res.Superseded = append(res.Superseded, old.ID)
			}

			if err := tx.Put(old); err != nil {
				return err
			}
			if !pinned.Contains(uint64(old.ID)) {
				res.Deprecated = append(res.Deprecated, old.ID)
			}
		}
		return nil
	})
	if err != nil {
		return RefreshResult{}, err
	}

	r.remember(res.New)
	r.replaceRuntime(ctx, res)
	r.logger.Info("refresh completed",
		"new", len(res.New),
		"superseded", len(res.Superseded),
		"vanished", len(res.Vanished),
		"deprecated", len(res.Deprecated),
	)
	return res, nil
}

// replaceRuntime points the runtime baseline at the successors of
// superseded runtime records and drops vanished ones.
func (r *Registry) replaceRuntime(ctx context.Context, res RefreshResult) {
	rt := r.RuntimeLocations()
	if len(rt) == 0 || (len(res.Superseded) == 0 && len(res.Vanished) == 0) {
		return
	}

	out := make([]model.RegisteredLocation, 0, len(rt))
	for _, l := range rt {
		switch {
		case slices.Contains(res.Vanished, l.ID):
		case slices.Contains(res.Superseded, l.ID):
			if succ, ok := r.successorHandle(ctx, l.ID); ok {
				out = append(out, succ)
			}
		default:
			out = append(out, l)
		}
	}
	r.runtime.Store(&out)
}

// successorHandle resolves the live handle of the record superseding id.
func (r *Registry) successorHandle(ctx context.Context, id model.LocationID) (model.RegisteredLocation, bool) {
	rec, ok, err := r.Record(ctx, id)
	if err != nil || !ok || rec.SupersededBy == 0 {
		return model.RegisteredLocation{}, false
	}
	loc, err := r.Location(ctx, rec.SupersededBy)
	if err != nil {
		return model.RegisteredLocation{}, false
	}
	return model.RegisteredLocation{ID: rec.SupersededBy, Location: loc}, true
}

// Cleanup deletes every deprecated record that no live snapshot references,
// removes its namespace entries and broadcasts feature.LocationRemoved for
// it. Live snapshots referencing unknown ids are reported as
// ErrInconsistentState after the deletions committed.
func (r *Registry) Cleanup(ctx context.Context) (CleanupResult, error) {
	if r.closed.Load() {
		return CleanupResult{}, ErrClosed
	}

	var (
		res     CleanupResult
		missing []model.LocationID
	)
	err := r.write(ctx, "cleanup", func(tx persistence.Tx) error {
		res = CleanupResult{}
		missing = missing[:0]

		pinned, ready := r.pinned()
		known := make(map[model.LocationID]bool)

		var victims []persistence.Record
		err := tx.Scan(func(rec persistence.Record) bool {
			known[rec.ID] = true
			if rec.Deprecated() && !pinned.Contains(uint64(rec.ID)) {
				victims = append(victims, rec)
			}
			return true
		})
		if err != nil {
			return err
		}

		it := ready.Iterator()
		for it.HasNext() {
			if id := model.LocationID(it.Next()); !known[id] {
				missing = append(missing, id)
			}
		}

		for _, rec := range victims {
			if err := tx.Delete(rec.ID); err != nil {
				return err
			}
		}
		res.Removed = victims
		return nil
	})
	if err != nil {
		return CleanupResult{}, err
	}

	for _, rec := range res.Removed {
		n := r.tree.RemoveLocation(rec.ID)
		r.handles.Delete(rec.ID)
		r.logger.Debug("location removed", "id", rec.ID, "path", rec.Path, "classes", n)
		if err := r.features.Broadcast(ctx, feature.LocationRemoved{Record: rec}); err != nil {
			r.logger.Warn("location removed handlers failed", "id", rec.ID, "error", err)
		}
	}
	if len(res.Removed) > 0 {
		r.logger.Info("cleanup completed", "removed", len(res.Removed))
	}

	if len(missing) > 0 {
		err := newInconsistentStateError(missing)
		r.logger.Error("live snapshot references unknown records", "error", err)
		return res, err
	}
	return res, nil
}
