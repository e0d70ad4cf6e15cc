// Package docstash stores documents with large numeric array payloads.
//
// A document database is a poor home for multi-megabyte arrays. docstash
// keeps the document in a collection and moves every NDArray value to a blob
// store, leaving a reference marker in its place. Load puts the arrays back.
//
// # Quick Start
//
// Embedded mode:
//
//	coll := collection.NewMemory()
//	blobs := blobstore.NewMemoryStore()
//	a := docstash.New(coll, blobs)
//
// From configuration:
//
//	cfg, _ := docstash.LoadConfig("docstash.yaml")
//	a, _ := docstash.Open(ctx, cfg)
//	defer a.Close()
//
// # Saving
//
//	id, _ := a.Save(ctx, document.Document{
//	    "name":  document.String("Important experiment"),
//	    "trial": document.Int(3),
//	    "data":  document.NDArrayValue(arr),
//	})
//
// The stored document carries two reserved keys: _blobRefs lists the blob
// references in the order they were written and insertion_date records the
// save time in UTC with millisecond precision.
//
// # Loading
//
//	for doc, err := range a.Load(ctx, document.NewFilterSet(
//	    document.Eq("name", document.String("Important experiment")),
//	)) {
//	    ...
//	}
//
// Use WithoutArrays to skip blob reads and get the reference markers instead.
//
// # Deleting
//
// Delete removes a document and its blobs. Blobs orphaned by a failed Save
// are reclaimed by Sweep.
//
// # Backends
//
// Collections: MongoDB, DynamoDB, bbolt, JSON lines and memory.
// Blob stores: GridFS, S3, MinIO, local directory and memory. Blob stores can
// be wrapped with a read cache and a bandwidth limit.
//
// # Errors
//
// Errors wrap the sentinels ErrSerialization, ErrStoreWrite, ErrStoreRead,
// ErrBlobNotFound, ErrQuery and ErrNotFound. SerializationError and
// BlobNotFoundError carry the offending key or reference.
package docstash
