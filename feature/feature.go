package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/persistence"
)

// Signal is one of AfterIndexing or LocationRemoved.
type Signal interface {
	// Kind returns a short name for logging.
	Kind() string
	isSignal()
}

// AfterIndexing is raised once per batch of locations whose classes were
// indexed and whose records transitioned to processed.
type AfterIndexing struct {
	Locations []model.RegisteredLocation
}

func (AfterIndexing) Kind() string { return "after_indexing" }
func (AfterIndexing) isSignal()    {}

// LocationRemoved is raised for every record reclaimed by cleanup.
type LocationRemoved struct {
	Record persistence.Record
}

func (LocationRemoved) Kind() string { return "location_removed" }
func (LocationRemoved) isSignal()    {}

// Handler reacts to signals.
type Handler interface {
	Handle(ctx context.Context, sig Signal) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sig Signal) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, sig Signal) error {
	return f(ctx, sig)
}

type registration struct {
	name    string
	handler Handler
}

// Broadcaster fans signals out to registered handlers.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers []*registration
	logger   *slog.Logger
}

// NewBroadcaster creates a Broadcaster. A nil logger discards output.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{logger: logger}
}

// Register adds a handler and returns a function removing it again.
func (b *Broadcaster) Register(name string, h Handler) (unregister func()) {
	reg := &registration{name: name, handler: h}

	b.mu.Lock()
	b.handlers = append(b.handlers, reg)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, r := range b.handlers {
			if r == reg {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered handlers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Broadcast delivers sig to every handler in registration order. Handler
// errors and panics are logged and joined into the returned error; every
// handler runs regardless.
func (b *Broadcaster) Broadcast(ctx context.Context, sig Signal) error {
	b.mu.RLock()
	handlers := append([]*registration(nil), b.handlers...)
	b.mu.RUnlock()

	var errs []error
	for _, reg := range handlers {
		if err := b.dispatch(ctx, reg, sig); err != nil {
			b.logger.Warn("feature handler failed",
				"handler", reg.name,
				"signal", sig.Kind(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", reg.name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) dispatch(ctx context.Context, reg *registration, sig Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return reg.handler.Handle(ctx, sig)
}
