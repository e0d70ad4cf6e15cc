package blobstore

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is an in-memory BlobStore implementation for testing.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[Ref][]byte),
	}
}

// Put stores a copy of data.
func (m *MemoryStore) Put(ctx context.Context, data []byte) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := NewRef()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[ref] = bytes.Clone(data)
	return ref, nil
}

// Get returns a copy of the blob.
func (m *MemoryStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	var data []byte
	err := m.View(ctx, ref, func(b []byte) error {
		data = bytes.Clone(b)
		return nil
	})
	return data, err
}

// View lends the stored bytes to fn.
func (m *MemoryStore) View(ctx context.Context, ref Ref, fn func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	data, ok := m.blobs[ref]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	return fn(data)
}

// Delete removes a blob.
func (m *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[ref]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, ref)
	return nil
}

// List returns all references in sorted order.
func (m *MemoryStore) List(ctx context.Context) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.blobs)), nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
