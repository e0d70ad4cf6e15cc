// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("arrays/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	adapter := docstash.New(coll, store)
//
// # Features
//
//   - Single PUT with CRC32C integrity check for small blobs
//   - Multipart uploads through the s3 manager for large blobs
//   - Automatic pagination for listing
//   - Configurable prefix for sharing a bucket between collections
package s3
