// Package feature dispatches lifecycle signals to registered extensions.
//
// Extensions that derive data from indexed classes (resolved types, caches of
// class bytes) register a Handler and evict what they derived when a location
// is removed. A failing or panicking handler is isolated: it is logged and
// never affects other handlers or the operation that raised the signal.
package feature
