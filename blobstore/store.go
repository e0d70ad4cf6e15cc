package blobstore

import (
	"context"
	"errors"
	"os"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidRef is returned for references a backend cannot address.
var ErrInvalidRef = errors.New("blobstore: invalid reference")

// Ref is an opaque blob reference issued by a store on Put.
type Ref string

func (r Ref) String() string { return string(r) }

// NewRef returns a fresh random reference.
func NewRef() Ref {
	return Ref(uuid.NewString())
}

// BlobStore stores immutable byte blobs under store-assigned references.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put stores data and returns its new reference.
	Put(ctx context.Context, data []byte) (Ref, error)
	// Get returns the blob contents.
	Get(ctx context.Context, ref Ref) ([]byte, error)
	// Delete removes a blob. Missing blobs report ErrNotFound where the
	// backend can detect it.
	Delete(ctx context.Context, ref Ref) error
}

// Lister is implemented by stores that can enumerate their blobs.
type Lister interface {
	List(ctx context.Context) ([]Ref, error)
}

// Viewer is implemented by stores that can lend out blob bytes without
// copying. The slice passed to fn is valid only until fn returns.
type Viewer interface {
	View(ctx context.Context, ref Ref, fn func([]byte) error) error
}

// View calls fn with the blob contents, using the zero-copy path when the
// store supports it.
func View(ctx context.Context, s BlobStore, ref Ref, fn func([]byte) error) error {
	if v, ok := s.(Viewer); ok {
		return v.View(ctx, ref, fn)
	}
	data, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	return fn(data)
}

// List enumerates s if it implements Lister.
// It returns errors.ErrUnsupported otherwise.
func List(ctx context.Context, s BlobStore) ([]Ref, error) {
	if l, ok := s.(Lister); ok {
		return l.List(ctx)
	}
	return nil, errors.ErrUnsupported
}
