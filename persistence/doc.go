// Package persistence stores location records transactionally.
//
// A Persistence hands out transactions: Read runs a function against a
// consistent view, Write runs it against a private copy that is committed
// atomically when the function returns nil and discarded otherwise.
//
// BlobPersistence keeps the whole record table in one versioned, checksummed
// and optionally compressed blob on a blobstore.BlobStore:
//
//	TABLE-000001.bin   encoded table, version 1
//	TABLE-000002.bin   encoded table, version 2
//	CURRENT            name of the committed table blob
//
// A commit writes the next table blob, then swaps CURRENT. A crash between
// the two leaves the previous version in effect. Readers never block writers:
// they see the immutable table of the last commit.
//
// The badgerstore subpackage provides an alternative backed by BadgerDB.
package persistence
