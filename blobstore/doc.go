// Package blobstore provides the storage abstraction behind classdb's
// blob-backed persistence.
//
// The persistence layer writes every committed version of the location table
// as an immutable blob and then atomically repoints a small CURRENT blob at
// it. A BlobStore therefore only needs whole-blob reads and atomic puts.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral databases
//   - LocalStore: local filesystem with atomic rename and an exclusive directory lock
//   - s3.Store: Amazon S3 (optionally with s3.DDBCommitStore for DynamoDB commits)
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
