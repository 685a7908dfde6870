package classdb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/classdb/internal/watch"
	"github.com/hupe1980/classdb/model"
)

// refresher runs DB.Refresh periodically and whenever a watched location
// changes on disk.
type refresher struct {
	db       *DB
	interval time.Duration
	watcher  *watch.Watcher
	trigger  chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRefresher(db *DB, o options) (*refresher, error) {
	r := &refresher{
		db:       db,
		interval: o.refreshInterval,
		trigger:  make(chan struct{}, 1),
	}

	if o.watch {
		w, err := watch.New(watch.Config{
			Debounce: o.watchDebounce,
			Logger:   o.logger.Logger,
		}, func(paths []string) {
			db.logger.Debug("locations changed on disk", "paths", paths)
			r.poke()
		})
		if err != nil {
			return nil, err
		}
		r.watcher = w
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(ctx)
	return r, nil
}

// poke schedules a refresh unless one is already pending.
func (r *refresher) poke() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// track watches the paths of locs. Locations without a file system path,
// such as in-memory ones, are skipped.
func (r *refresher) track(locs []model.RegisteredLocation) {
	if r.watcher == nil {
		return
	}
	for _, l := range locs {
		if err := r.watcher.Add(l.Location.Path()); err != nil && !errors.Is(err, watch.ErrClosed) {
			r.db.logger.Debug("location not watched", "path", l.Location.Path(), "error", err)
		}
	}
}

func (r *refresher) run(ctx context.Context) {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-r.trigger:
		}

		if _, err := r.db.Refresh(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ErrClosed) {
			r.db.logger.Warn("background refresh failed", "error", err)
		}
	}
}

func (r *refresher) stop() error {
	r.cancel()
	var err error
	if r.watcher != nil {
		err = r.watcher.Stop()
	}
	r.wg.Wait()
	return err
}
