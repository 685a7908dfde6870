package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/classdb/blobstore"
	"github.com/hupe1980/classdb/model"
)

const (
	// CurrentFileName names the blob pointing at the committed table.
	CurrentFileName = "CURRENT"
	// TableFileName is the prefix of versioned table blobs.
	TableFileName = "TABLE"
)

func tableName(version uint64) string {
	return fmt.Sprintf("%s-%06d.bin", TableFileName, version)
}

func parseTableName(name string) (uint64, bool) {
	s, ok := strings.CutPrefix(name, TableFileName+"-")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, ".bin")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// Option configures a BlobPersistence.
type Option func(*BlobPersistence)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *BlobPersistence) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCompression sets the compression of newly written tables.
func WithCompression(c Compression) Option {
	return func(p *BlobPersistence) { p.compression = c }
}

// BlobPersistence implements Persistence on top of a blobstore.BlobStore.
//
// Writers are serialized; each commit produces a new table version. Readers
// work on the immutable table of the last commit and never block.
type BlobPersistence struct {
	store       blobstore.BlobStore
	logger      *slog.Logger
	compression Compression

	mu      sync.Mutex // serializes writers
	version uint64     // guarded by mu
	current atomic.Pointer[table]
	closed  atomic.Bool
}

func newBlobPersistence(store blobstore.BlobStore, opts ...Option) *BlobPersistence {
	p := &BlobPersistence{
		store:       store,
		logger:      slog.New(slog.DiscardHandler),
		compression: CompressionLZ4,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(newTable())
	return p
}

// Open loads the committed table from store, or starts empty when the store
// holds none. Table blobs older than the committed one are removed.
func Open(ctx context.Context, store blobstore.BlobStore, opts ...Option) (*BlobPersistence, error) {
	p := newBlobPersistence(store, opts...)

	b, err := blobstore.ReadAll(ctx, store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return p, nil
		}
		return nil, fmt.Errorf("read %s: %w", CurrentFileName, err)
	}

	name := string(b)
	version, ok := parseTableName(name)
	if !ok {
		return nil, fmt.Errorf("%w: invalid %s content %q", ErrCorrupt, CurrentFileName, name)
	}

	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	t, err := decodeTable(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	p.current.Store(t)
	p.version = version
	p.logger.Debug("table loaded", "version", version, "records", len(t.records))

	p.removeStale(ctx, version)
	return p, nil
}

// NewMemory returns a BlobPersistence over a fresh in-memory blob store.
func NewMemory(opts ...Option) *BlobPersistence {
	return newBlobPersistence(blobstore.NewMemoryStore(), opts...)
}

func (p *BlobPersistence) removeStale(ctx context.Context, current uint64) {
	names, err := p.store.List(ctx, TableFileName+"-")
	if err != nil {
		p.logger.Warn("list tables failed", "error", err)
		return
	}
	for _, name := range names {
		if v, ok := parseTableName(name); ok && v < current {
			if err := p.store.Delete(ctx, name); err != nil {
				p.logger.Warn("remove stale table failed", "blob", name, "error", err)
			}
		}
	}
}

// Read runs fn against the last committed table.
func (p *BlobPersistence) Read(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrClosed
	}
	return fn(&tableTx{t: p.current.Load()})
}

// Write runs fn against a private copy of the table and commits it if fn
// returns nil. A transaction without changes commits nothing.
func (p *BlobPersistence) Write(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}

	next := p.current.Load().clone()
	tx := &dirtyTx{tableTx: tableTx{t: next, writable: true}}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	data, err := encodeTable(next, p.compression)
	if err != nil {
		return err
	}

	version := p.version + 1
	name := tableName(version)
	if err := p.store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	if err := p.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		if derr := p.store.Delete(context.WithoutCancel(ctx), name); derr != nil {
			p.logger.Warn("remove uncommitted table failed", "blob", name, "error", derr)
		}
		return fmt.Errorf("commit %s: %w", name, err)
	}

	prev := p.version
	p.version = version
	p.current.Store(next)

	if prev > 0 {
		if err := p.store.Delete(context.WithoutCancel(ctx), tableName(prev)); err != nil {
			p.logger.Warn("remove previous table failed", "version", prev, "error", err)
		}
	}
	p.logger.Debug("table committed", "version", version, "records", len(next.records), "bytes", len(data))
	return nil
}

// Version returns the committed table version (0 before the first commit).
func (p *BlobPersistence) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Close marks the store closed. The underlying blob store is owned by the
// caller and stays open.
func (p *BlobPersistence) Close() error {
	p.closed.Store(true)
	return nil
}

// dirtyTx records whether a write transaction changed anything.
type dirtyTx struct {
	tableTx
	dirty bool
}

func (tx *dirtyTx) Put(rec Record) error {
	if err := tx.tableTx.Put(rec); err != nil {
		return err
	}
	tx.dirty = true
	return nil
}

func (tx *dirtyTx) Delete(id model.LocationID) error {
	if _, ok := tx.t.records[id]; !ok {
		return nil
	}
	tx.dirty = true
	return tx.tableTx.Delete(id)
}

func (tx *dirtyTx) NextID() (model.LocationID, error) {
	tx.dirty = true
	return tx.tableTx.NextID()
}
