// Package location provides bytecode locations: the units of binary content
// (jar archives, jmod modules, build-output directories) that make up a classpath.
//
// A Location is an immutable handle captured at a point in time. Its Hash
// identifies the content it was created from; IsChanged compares that hash
// with the current on-disk state, and Refreshed returns a new handle for the
// current state (or nil if the underlying path no longer exists).
//
// # Built-in Implementations
//
//   - Archive: .jar and .jmod files, read with github.com/klauspost/compress/zip
//   - Directory: compiled-output folders containing .class files
//   - Restored: a location rebuilt from a persisted path and hash
//   - Memory: an in-memory location backed by a mutable MemorySource
//
// Use FromPath to build the right implementation for a path.
package location
