package blobstore

import (
	"context"

	"github.com/hupe1980/docstash/resource"
)

// ThrottledStore limits the bytes per second moved through a store.
//
// Writes wait before they are sent, reads wait after the bytes arrive, so a
// large blob delays the next request rather than failing.
type ThrottledStore struct {
	inner BlobStore
	rc    *resource.Controller
}

// NewThrottledStore wraps inner with the IO limit of rc.
func NewThrottledStore(inner BlobStore, rc *resource.Controller) *ThrottledStore {
	return &ThrottledStore{inner: inner, rc: rc}
}

// Put waits for write budget, then stores data.
func (s *ThrottledStore) Put(ctx context.Context, data []byte) (Ref, error) {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return "", err
	}
	return s.inner.Put(ctx, data)
}

// Get reads the blob and charges its size.
func (s *ThrottledStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	data, err := s.inner.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete is not throttled.
func (s *ThrottledStore) Delete(ctx context.Context, ref Ref) error {
	return s.inner.Delete(ctx, ref)
}

// List delegates to the inner store.
func (s *ThrottledStore) List(ctx context.Context) ([]Ref, error) {
	return List(ctx, s.inner)
}

// Unwrap returns the inner store.
func (s *ThrottledStore) Unwrap() BlobStore { return s.inner }
