package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/classdb/blobstore"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior.
type Fault struct {
	FailOpen   bool
	FailPut    bool
	FailDelete bool
	Err        error // ErrInjected if nil
}

// FaultyStore is a BlobStore wrapper that can inject errors.
type FaultyStore struct {
	Store blobstore.BlobStore

	mu    sync.Mutex
	rules map[string]Fault // blob name pattern -> fault
	puts  int
}

// NewFaultyStore wraps store.
func NewFaultyStore(store blobstore.BlobStore) *FaultyStore {
	return &FaultyStore{
		Store: store,
		rules: make(map[string]Fault),
	}
}

// AddRule adds a fault for every blob whose name contains pattern.
func (f *FaultyStore) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all faults.
func (f *FaultyStore) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

// Puts returns the number of successful puts.
func (f *FaultyStore) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *FaultyStore) match(name string, pick func(Fault) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) && pick(rule) {
			if rule.Err != nil {
				return rule.Err
			}
			return ErrInjected
		}
	}
	return nil
}

func (f *FaultyStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if err := f.match(name, func(r Fault) bool { return r.FailOpen }); err != nil {
		return nil, err
	}
	return f.Store.Open(ctx, name)
}

func (f *FaultyStore) Put(ctx context.Context, name string, data []byte) error {
	if err := f.match(name, func(r Fault) bool { return r.FailPut }); err != nil {
		return err
	}
	if err := f.Store.Put(ctx, name, data); err != nil {
		return err
	}
	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	return nil
}

func (f *FaultyStore) Delete(ctx context.Context, name string) error {
	if err := f.match(name, func(r Fault) bool { return r.FailDelete }); err != nil {
		return err
	}
	return f.Store.Delete(ctx, name)
}

func (f *FaultyStore) List(ctx context.Context, prefix string) ([]string, error) {
	return f.Store.List(ctx, prefix)
}
