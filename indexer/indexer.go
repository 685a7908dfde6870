package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/classdb/internal/resource"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/namespace"
)

// Processor marks indexed locations processed. *registry.Registry implements
// it.
type Processor interface {
	AfterProcessing(ctx context.Context, locs []model.RegisteredLocation) error
}

// Result is the outcome of one Index call.
type Result struct {
	// Indexed holds the locations whose classes are in the tree, whether
	// indexed by this call or earlier.
	Indexed []model.RegisteredLocation
	// Failed holds the ids of locations whose content could not be listed.
	Failed []model.LocationID
	// Classes is the number of classes of the locations indexed during this
	// call, including runs shared with concurrent calls.
	Classes int
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithResourceController bounds indexing concurrency and read throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(ix *Indexer) {
		ix.rc = rc
	}
}

// Indexer adds the classes of locations to a namespace tree.
type Indexer struct {
	tree      *namespace.Tree
	processor Processor
	rc        *resource.Controller
	logger    *slog.Logger

	flight  singleflight.Group
	indexed sync.Map // model.LocationID -> int (classes)
}

// New creates an Indexer.
func New(tree *namespace.Tree, processor Processor, opts ...Option) *Indexer {
	ix := &Indexer{
		tree:      tree,
		processor: processor,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index makes sure the classes of every location are in the tree and marks
// the locations processed. A location that cannot be listed is logged,
// reported in Result.Failed and left unprocessed; the others are unaffected.
func (ix *Indexer) Index(ctx context.Context, locs []model.RegisteredLocation) (Result, error) {
	type outcome struct {
		run indexRun
		err error
	}
	outcomes := make([]outcome, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range locs {
		if _, ok := ix.indexed.Load(loc.ID); ok {
			continue
		}
		g.Go(func() error {
			run, err := ix.indexOne(gctx, loc)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = outcome{run: run, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for i, loc := range locs {
		o := outcomes[i]
		if o.err != nil {
			ix.logger.Warn("indexing failed", "id", loc.ID, "path", loc.Location.Path(), "error", o.err)
			res.Failed = append(res.Failed, loc.ID)
			continue
		}
		if o.run.fresh {
			res.Classes += o.run.classes
		}
		res.Indexed = append(res.Indexed, loc)
	}

	if err := ix.processor.AfterProcessing(ctx, res.Indexed); err != nil {
		return res, err
	}
	if res.Classes > 0 {
		ix.logger.Debug("locations indexed", "locations", len(res.Indexed), "classes", res.Classes)
	}
	return res, nil
}

type indexRun struct {
	classes int
	fresh   bool
}

// indexOne indexes loc unless it is indexed already. Concurrent calls for the
// same id share one run.
func (ix *Indexer) indexOne(ctx context.Context, loc model.RegisteredLocation) (indexRun, error) {
	v, err, _ := ix.flight.Do(loc.ID.String(), func() (any, error) {
		if n, ok := ix.indexed.Load(loc.ID); ok {
			return indexRun{classes: n.(int)}, nil
		}

		if err := ix.rc.AcquireWorker(ctx); err != nil {
			return nil, err
		}
		defer ix.rc.ReleaseWorker()

		names, err := loc.Location.ClassNames()
		if err != nil {
			return nil, fmt.Errorf("list classes of %s: %w", loc.Location.Path(), err)
		}

		var listed int
		for _, name := range names {
			listed += len(name)
		}
		if err := ix.rc.AcquireIO(ctx, listed); err != nil {
			return nil, err
		}

		for _, name := range names {
			ix.tree.AddClass(name, loc.ID)
		}
		ix.indexed.Store(loc.ID, len(names))
		return indexRun{classes: len(names), fresh: true}, nil
	})
	if err != nil {
		return indexRun{}, err
	}
	return v.(indexRun), nil
}

// Indexed reports whether id was indexed by this process.
func (ix *Indexer) Indexed(id model.LocationID) bool {
	_, ok := ix.indexed.Load(id)
	return ok
}

// Forget drops id so it is indexed again when requested. Call it once the
// record is removed.
func (ix *Indexer) Forget(id model.LocationID) {
	ix.indexed.Delete(id)
}

// Len returns the number of locations indexed by this process.
func (ix *Indexer) Len() int {
	n := 0
	ix.indexed.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
