// Package cache provides LRU caching for class bytes.
//
// # Class Cache (RAM)
//
// The Sharded cache stores recently resolved class files keyed by
// (location id, class name). It spreads entries across 64 shards to reduce
// lock contention.
//
// Key features:
//   - Shard selection by xxhash of the key
//   - Per-shard mutex for minimal contention
//   - Integrated with resource.Controller for global memory limits
//   - Bulk eviction of a whole location once its record is removed
package cache
