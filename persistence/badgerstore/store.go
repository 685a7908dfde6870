package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/persistence"
)

var (
	recordPrefix = []byte("rec/")
	seqKey       = []byte("meta/seq")
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB log output. Nil disables logging.
	Logger *slog.Logger

	// MaxRetries bounds how often a conflicting write is retried.
	MaxRetries int

	// GCInterval is how often to run value log garbage collection.
	// Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		MaxRetries:     16,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		MaxRetries: 16,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements persistence.Persistence.
type Store struct {
	db         *badger.DB
	logger     *slog.Logger
	maxRetries int

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// Open opens a badger database with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:         db,
		logger:     logger,
		maxRetries: max(cfg.MaxRetries, 1),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Read runs fn in a read-only badger transaction.
func (s *Store) Read(ctx context.Context, fn func(persistence.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// Write runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) Write(ctx context.Context, fn func(persistence.Tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.writeOnce(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("write after %d attempts: %w", attempt, err)
		}
		s.logger.Debug("write conflict, retrying", "attempt", attempt)
	}
}

func (s *Store) writeOnce(fn func(persistence.Tx) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	t := &tx{txn: txn, writable: true}
	seq, err := t.loadSeq()
	if err != nil {
		return err
	}
	t.seq = seq

	if err := fn(t); err != nil {
		return err
	}

	// Always written so that concurrent writers conflict on it.
	if err := txn.Set(seqKey, binary.BigEndian.AppendUint64(nil, t.seq)); err != nil {
		return err
	}
	return txn.Commit()
}

// Close stops background GC and closes the database. Safe to call multiple times.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

func recordKey(id model.LocationID) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), recordPrefix...), uint64(id))
}

// tx implements persistence.Tx over a badger transaction.
type tx struct {
	txn      *badger.Txn
	writable bool
	seq      uint64
}

func (t *tx) loadSeq() (uint64, error) {
	item, err := t.txn.Get(seqKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: sequence of %d bytes", persistence.ErrCorrupt, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func (t *tx) Get(id model.LocationID) (persistence.Record, bool, error) {
	item, err := t.txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persistence.Record{}, false, nil
	}
	if err != nil {
		return persistence.Record{}, false, err
	}

	var rec persistence.Record
	err = item.Value(func(v []byte) error {
		rec, err = persistence.UnmarshalRecord(v)
		return err
	})
	if err != nil {
		return persistence.Record{}, false, err
	}
	return rec, true, nil
}

func (t *tx) Scan(fn func(persistence.Record) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = recordPrefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec persistence.Record
		err := it.Item().Value(func(v []byte) error {
			var err error
			rec, err = persistence.UnmarshalRecord(v)
			return err
		})
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func (t *tx) Put(rec persistence.Record) error {
	if !t.writable {
		return persistence.ErrReadOnlyTx
	}
	if rec.ID == 0 {
		return persistence.ErrInvalidRecord
	}
	data, err := persistence.MarshalRecord(rec)
	if err != nil {
		return err
	}
	if uint64(rec.ID) > t.seq {
		t.seq = uint64(rec.ID)
	}
	return t.txn.Set(recordKey(rec.ID), data)
}

func (t *tx) Delete(id model.LocationID) error {
	if !t.writable {
		return persistence.ErrReadOnlyTx
	}
	return t.txn.Delete(recordKey(id))
}

func (t *tx) NextID() (model.LocationID, error) {
	if !t.writable {
		return 0, persistence.ErrReadOnlyTx
	}
	t.seq++
	return model.LocationID(t.seq), nil
}
