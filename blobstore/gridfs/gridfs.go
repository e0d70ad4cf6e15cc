// Package gridfs stores array blobs in MongoDB GridFS, next to the document
// collection they belong to.
//
// References are the hex form of the GridFS file ObjectID.
//
//	bucket, err := gridfs.NewBucket(client.Database("lab"))
//	store := gridfsblob.NewStore(bucket)
package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/docstash/blobstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ blobstore.BlobStore = (*Store)(nil)
	_ blobstore.Lister    = (*Store)(nil)
)

// Filename is recorded on every uploaded file.
const Filename = "docstash.ndarray"

// Store implements blobstore.BlobStore on a GridFS bucket.
type Store struct {
	bucket *gridfs.Bucket
}

// NewStore wraps an existing bucket.
func NewStore(bucket *gridfs.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Open creates the default bucket ("fs") of db.
func Open(db *mongo.Database) (*Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket())
	if err != nil {
		return nil, fmt.Errorf("gridfs: %w", err)
	}
	return NewStore(bucket), nil
}

// parseRef decodes a reference. A malformed reference cannot name a stored
// file, so it reports both ErrInvalidRef and ErrNotFound.
func parseRef(ref blobstore.Ref) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(string(ref))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %w: %w", blobstore.ErrInvalidRef, blobstore.ErrNotFound, err)
	}
	return oid, nil
}

// Put uploads data as a new GridFS file.
func (s *Store) Put(ctx context.Context, data []byte) (blobstore.Ref, error) {
	// Uploads are not context aware; honor cancellation up front.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	oid, err := s.bucket.UploadFromStream(Filename, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("gridfs: upload: %w", err)
	}
	return blobstore.Ref(oid.Hex()), nil
}

// Get downloads a file.
func (s *Store) Get(ctx context.Context, ref blobstore.Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oid, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(oid, &buf); err != nil {
		return nil, translateError(err)
	}
	return buf.Bytes(), nil
}

// Delete removes a file and its chunks.
func (s *Store) Delete(ctx context.Context, ref blobstore.Ref) error {
	oid, err := parseRef(ref)
	if err != nil {
		return err
	}
	return translateError(s.bucket.DeleteContext(ctx, oid))
}

// List returns the references of every file in the bucket.
func (s *Store) List(ctx context.Context) ([]blobstore.Ref, error) {
	cur, err := s.bucket.FindContext(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var refs []blobstore.Ref
	for cur.Next(ctx) {
		var file struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&file); err != nil {
			return nil, err
		}
		refs = append(refs, blobstore.Ref(file.ID.Hex()))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	slices.Sort(refs)
	return refs, nil
}

func translateError(err error) error {
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("%w: %w", blobstore.ErrNotFound, err)
	}
	return err
}
