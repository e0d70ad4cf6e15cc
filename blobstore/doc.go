// Package blobstore provides the storage abstraction for externalized array
// payloads.
//
// A BlobStore stores immutable byte blobs and hands out an opaque Ref for each.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem with fan-out directories and mmap reads
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: any S3-compatible server through minio-go
//   - gridfs.Store: MongoDB GridFS, next to the document collection
//
// # Decorators
//
//   - CachingStore: byte-budgeted LRU of whole blobs
//   - ThrottledStore: bytes-per-second limit on reads and writes
//
// # Optional Interfaces
//
// Lister enumerates blobs and is required by the orphan sweep. Viewer lends
// blob bytes without copying; use the View helper to fall back to Get.
package blobstore
