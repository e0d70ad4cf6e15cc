// Package blobstoretest provides a conformance suite for blobstore backends.
package blobstoretest

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the BlobStore contract against stores built by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.BlobStore) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		data := []byte("hello world, this is a test blob")
		ref, err := s.Put(ctx, data)
		require.NoError(t, err)
		require.NotEmpty(t, ref)

		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("DistinctRefs", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		a, err := s.Put(ctx, []byte("same"))
		require.NoError(t, err)
		b, err := s.Put(ctx, []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Isolation", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		data := []byte{1, 2, 3}
		ref, err := s.Put(ctx, data)
		require.NoError(t, err)
		data[0] = 9

		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, got)
		got[1] = 9

		again, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, again)
	})

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		ref, err := s.Put(ctx, nil)
		require.NoError(t, err)
		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Large", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		data := bytes.Repeat([]byte("0123456789abcdef"), 1<<14)
		ref, err := s.Put(ctx, data)
		require.NoError(t, err)

		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got))
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		ref, err := s.Put(ctx, []byte("gone"))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, ref))

		_, err = s.Get(ctx, ref)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(t.Context(), blobstore.NewRef())
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("View", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		ref, err := s.Put(ctx, []byte("viewed"))
		require.NoError(t, err)

		var seen string
		require.NoError(t, blobstore.View(ctx, s, ref, func(b []byte) error {
			seen = string(b)
			return nil
		}))
		assert.Equal(t, "viewed", seen)

		sentinel := errors.New("stop")
		assert.ErrorIs(t, blobstore.View(ctx, s, ref, func([]byte) error { return sentinel }), sentinel)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		if _, ok := s.(blobstore.Lister); !ok {
			t.Skip("store does not implement Lister")
		}
		ctx := t.Context()

		var want []blobstore.Ref
		for _, p := range []string{"a", "b", "c"} {
			ref, err := s.Put(ctx, []byte(p))
			require.NoError(t, err)
			want = append(want, ref)
		}
		require.NoError(t, s.Delete(ctx, want[1]))
		want = slices.Delete(want, 1, 2)

		got, err := blobstore.List(ctx, s)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)
	})
}
