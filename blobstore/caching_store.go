package blobstore

import (
	"bytes"
	"context"

	"github.com/hupe1980/docstash/internal/cache"
	"github.com/hupe1980/docstash/resource"
)

// CachingStore wraps a BlobStore and keeps recently read blobs in memory.
//
// Blobs are immutable, so entries never go stale; Delete evicts.
type CachingStore struct {
	inner BlobStore
	cache *cache.LRU
}

// NewCachingStore creates a new CachingStore holding at most capacity bytes
// of blob data. Cached bytes are charged to rc's memory budget; rc may be nil.
func NewCachingStore(inner BlobStore, capacity int64, rc *resource.Controller) *CachingStore {
	return &CachingStore{inner: inner, cache: cache.NewLRU(capacity, rc)}
}

// Put writes through to the inner store. Freshly written blobs are not
// cached; most are read back rarely.
func (s *CachingStore) Put(ctx context.Context, data []byte) (Ref, error) {
	return s.inner.Put(ctx, data)
}

// Get serves from the cache, filling it on a miss.
func (s *CachingStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	var data []byte
	err := s.View(ctx, ref, func(b []byte) error {
		data = bytes.Clone(b)
		return nil
	})
	return data, err
}

// View lends the cached bytes to fn.
func (s *CachingStore) View(ctx context.Context, ref Ref, fn func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data, ok := s.cache.Get(string(ref)); ok {
		return fn(data)
	}

	data, err := s.inner.Get(ctx, ref)
	if err != nil {
		return err
	}
	s.cache.Set(string(ref), data)
	return fn(data)
}

// Delete evicts the blob and removes it from the inner store.
func (s *CachingStore) Delete(ctx context.Context, ref Ref) error {
	s.cache.Delete(string(ref))
	return s.inner.Delete(ctx, ref)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context) ([]Ref, error) {
	return List(ctx, s.inner)
}

// Stats returns cache hit and miss counters.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}

// Unwrap returns the inner store.
func (s *CachingStore) Unwrap() BlobStore { return s.inner }
