// Package indexer fills the namespace tree with the classes of registered
// locations.
//
// Locations are indexed concurrently, bounded by the worker slots of a
// resource.Controller. Concurrent requests for the same location share one
// indexing run. Once a batch is indexed, its records are marked processed
// through Registry.AfterProcessing.
//
// The namespace tree lives in memory only, so every location is indexed once
// per process even when its record is already processed.
package indexer
