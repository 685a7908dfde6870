// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems (Ceph, Garage,
// SeaweedFS) without pulling in the AWS SDK.
//
//	store, err := minio.Connect("localhost:9000", "minioadmin", "minioadmin", "classdb", "prod/", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := classdb.Open(ctx, classdb.WithBlobStore(store))
package minio
