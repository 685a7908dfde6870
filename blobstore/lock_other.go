//go:build !unix

package blobstore

import "os"

// Advisory locking is only implemented on unix; elsewhere the store relies on
// a single owning process.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
