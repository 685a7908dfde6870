// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("classdb/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	db, err := classdb.Open(ctx, classdb.WithBlobStore(store))
//
// S3 offers strong read-after-write consistency but no compare-and-swap, so a
// single writer per prefix is assumed. Wrap the store in a DDBCommitStore to
// let DynamoDB arbitrate the CURRENT pointer between concurrent writers.
package s3
