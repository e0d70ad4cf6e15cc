package docstash

import (
	"errors"
	"fmt"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/collection"
)

var (
	// ErrSerialization is returned when a value cannot be encoded or a blob
	// cannot be decoded back into an array.
	ErrSerialization = errors.New("serialization failed")
	// ErrStoreWrite is returned when the blob store or the collection rejects a write.
	ErrStoreWrite = errors.New("store write failed")
	// ErrStoreRead is returned when a read fails for a reason other than a
	// missing blob or a rejected query.
	ErrStoreRead = errors.New("store read failed")
	// ErrBlobNotFound is returned when a document references a blob that does not exist.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrQuery is returned when the collection rejects a query.
	ErrQuery = errors.New("invalid query")
	// ErrNotFound is returned when no document has the requested identifier.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("adapter closed")
)

// SerializationError reports the document key whose value could not be
// encoded or decoded.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type SerializationError struct {
	Key   string
	cause error
}

func (e *SerializationError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("serialization failed at key %q", e.Key)
	}
	return fmt.Sprintf("serialization failed at key %q: %v", e.Key, e.cause)
}

func (e *SerializationError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrSerialization}
	}
	return []error{ErrSerialization, e.cause}
}

// BlobNotFoundError reports a dangling reference.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type BlobNotFoundError struct {
	Ref        blobstore.Ref
	DocumentID string
	cause      error
}

func (e *BlobNotFoundError) Error() string {
	return fmt.Sprintf("blob %s referenced by document %s not found", e.Ref, e.DocumentID)
}

func (e *BlobNotFoundError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrBlobNotFound}
	}
	return []error{ErrBlobNotFound, e.cause}
}

// translateQueryError classifies errors surfaced by collection.Find.
func translateQueryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, collection.ErrInvalidQuery) {
		return fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreRead, err)
}

// translateFindOneError classifies errors surfaced by collection.FindOne.
func translateFindOneError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, collection.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreRead, err)
}
