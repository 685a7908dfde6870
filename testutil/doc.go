// Package testutil provides testing utilities for classdb.
//
// This package is intended for use in tests only.
//
// # Random Class Names
//
//	rng := testutil.NewRNG(seed)
//	names := rng.ClassNames(100, 3) // e.g. "pkg3.pkg1.Class42"
//
// # Archives
//
//	testutil.WriteJar(t, filepath.Join(dir, "app.jar"), map[string][]byte{
//	    "com.acme.Main": []byte("bytes"),
//	})
//
// # Fault Injection
//
//	store := testutil.NewFaultyStore(blobstore.NewMemoryStore())
//	store.AddRule("CURRENT", testutil.Fault{FailPut: true})
package testutil
