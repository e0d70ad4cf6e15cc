// Package hash provides the checksum stored in array blob headers.
//
// Blobs use CRC32-Castagnoli, which is hardware accelerated on x86 and ARM:
//
//	sum := hash.CRC32C(data)
package hash
