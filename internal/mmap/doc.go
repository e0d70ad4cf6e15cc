// Package mmap provides read-only memory-mapped file access.
//
// The local blob store uses it to hand array blobs to the decoder without an
// intermediate copy through a read buffer:
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//	arr, err := codec.Decode(m.Bytes())
//
// Bytes is only valid until Close. Unix uses mmap(2); Windows uses
// CreateFileMapping/MapViewOfFile.
package mmap
