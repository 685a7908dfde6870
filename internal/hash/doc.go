// Package hash provides the CRC32-Castagnoli checksum used for data integrity.
//
// Persisted record tables and S3 uploads are checksummed with CRC32C, which is
// hardware accelerated on x86 (SSE4.2) and ARM (CRC extension).
//
//	checksum := hash.CRC32C(data)
//	ok := hash.Verify(data, checksum)
package hash
