// Package classdb provides a live, persistent index over classpath
// locations: jar archives, jmod modules and build-output directories.
//
// Many independent client sessions share one DB. Each session builds a
// Classpath, which pins the location records it resolves against. When a
// location changes on disk, a refresh links its record to a new one; the old
// record is reclaimed only once no open classpath references it anymore.
//
// # Quick Start
//
//	ctx := context.Background()
//	store, _ := blobstore.OpenLocalStore("./data")
//	db, _ := classdb.Open(ctx,
//	    classdb.WithBlobStore(store, persistence.CompressionLZ4),
//	    classdb.WithRuntime("/usr/lib/jvm/java-21/jmods/java.base.jmod"),
//	    classdb.WithWatch(0),
//	)
//	defer db.Close()
//
//	cp, _ := db.Classpath(ctx, "lib/guava.jar", "build/classes")
//	defer cp.Close()
//
//	class, _ := cp.FindClass("com.google.common.collect.ImmutableList")
//	b, _ := cp.ClassBytes(ctx, class.FullName())
//
// # Persistence
//
// Records live in a persistence.Persistence. The blob-backed implementation
// stores one copy-on-write table in any blobstore.BlobStore (local
// directory, memory, S3, MinIO); persistence/badgerstore keeps records in an
// embedded Badger database.
//
// # Refresh
//
// DB.Refresh detects changed locations, indexes their new content and runs
// cleanup. WithRefreshInterval and WithWatch run it in the background.
//
// # Vanished Locations
//
// Name lookups of an open classpath keep returning classes of a location
// that was deleted in the meantime. Their bytes are served from the class
// cache when present; otherwise ClassBytes fails with
// ErrLocationUnavailable.
package classdb
