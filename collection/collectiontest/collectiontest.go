// Package collectiontest provides a conformance suite for collection backends.
package collectiontest

import (
	"testing"
	"time"

	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the Collection contract against collections built by newColl.
// Each subtest gets a fresh, empty collection. missingID must be an identifier
// in the backend's format that was never assigned.
func Run(t *testing.T, newColl func(t *testing.T) collection.Collection, missingID document.ID) {
	t.Helper()

	t.Run("InsertFindOne", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		doc := sampleDocument()
		id, err := c.InsertOne(ctx, doc)
		require.NoError(t, err)
		require.False(t, id.IsZero())

		got, err := c.FindOne(ctx, id)
		require.NoError(t, err)

		gotID, ok := got.ID()
		require.True(t, ok)
		assert.Equal(t, id, gotID)

		delete(got, document.KeyID)
		assert.True(t, doc.Equal(got), "got %v", got)
	})

	t.Run("AssignsID", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		doc := document.Document{document.KeyID: document.String("caller"), "a": document.Int(1)}
		id, err := c.InsertOne(ctx, doc)
		require.NoError(t, err)
		assert.NotEqual(t, document.ID("caller"), id)
		assert.Equal(t, document.String("caller"), doc[document.KeyID], "input must not be mutated")

		other, err := c.InsertOne(ctx, document.Document{"a": document.Int(1)})
		require.NoError(t, err)
		assert.NotEqual(t, id, other)
	})

	t.Run("Find", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		a := insert(t, c, document.Document{"name": document.String("alpha run"), "trial": document.Int(1), "ok": document.Bool(true)})
		b := insert(t, c, document.Document{"name": document.String("beta run"), "trial": document.Int(2), "ok": document.Bool(false)})
		d := insert(t, c, document.Document{"name": document.String("alpha run"), "trial": document.Int(3), "ok": document.Bool(true)})

		tests := []struct {
			name string
			fs   *document.FilterSet
			want []document.ID
		}{
			{"all", nil, []document.ID{a, b, d}},
			{"empty", document.NewFilterSet(), []document.ID{a, b, d}},
			{"eq string", document.NewFilterSet(document.Eq("name", document.String("alpha run"))), []document.ID{a, d}},
			{"eq bool", document.NewFilterSet(document.Eq("ok", document.Bool(false))), []document.ID{b}},
			{"eq int", document.NewFilterSet(document.Eq("trial", document.Int(2))), []document.ID{b}},
			{"and", document.NewFilterSet(
				document.Eq("name", document.String("alpha run")),
				document.Gte("trial", document.Int(2)),
			), []document.ID{d}},
			{"ne", document.NewFilterSet(document.Ne("trial", document.Int(1))), []document.ID{b, d}},
			{"lt", document.NewFilterSet(document.Lt("trial", document.Int(3))), []document.ID{a, b}},
			{"in", document.NewFilterSet(document.In("trial", document.Int(1), document.Int(3))), []document.ID{a, d}},
			{"contains", document.NewFilterSet(document.Contains("name", "beta")), []document.ID{b}},
			{"by id", document.ByID(b), []document.ID{b}},
			{"no match", document.NewFilterSet(document.Eq("name", document.String("gamma"))), nil},
			{"missing key", document.NewFilterSet(document.Eq("absent", document.Int(1))), nil},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				var got []document.ID
				for doc, err := range c.Find(ctx, tc.fs) {
					require.NoError(t, err)
					id, ok := doc.ID()
					require.True(t, ok)
					got = append(got, id)
				}
				assert.ElementsMatch(t, tc.want, got)
			})
		}
	})

	t.Run("FindEarlyBreak", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		for i := range 3 {
			insert(t, c, document.Document{"i": document.Int(int64(i))})
		}

		n := 0
		for _, err := range c.Find(ctx, nil) {
			require.NoError(t, err)
			n++
			break
		}
		assert.Equal(t, 1, n)
	})

	t.Run("FindInvalidQuery", func(t *testing.T) {
		c := newColl(t)

		fs := &document.FilterSet{Filters: []document.Filter{{Key: "a", Operator: "regex", Value: document.String("x")}}}
		var errs []error
		for _, err := range c.Find(t.Context(), fs) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], collection.ErrInvalidQuery)
	})

	t.Run("FindOneMissing", func(t *testing.T) {
		c := newColl(t)

		_, err := c.FindOne(t.Context(), missingID)
		assert.ErrorIs(t, err, collection.ErrNotFound)
	})

	t.Run("DeleteOne", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		keep := insert(t, c, document.Document{"a": document.Int(1)})
		gone := insert(t, c, document.Document{"a": document.Int(2)})

		require.NoError(t, c.DeleteOne(ctx, gone))

		_, err := c.FindOne(ctx, gone)
		assert.ErrorIs(t, err, collection.ErrNotFound)
		assert.ErrorIs(t, c.DeleteOne(ctx, gone), collection.ErrNotFound)

		_, err = c.FindOne(ctx, keep)
		require.NoError(t, err)

		var left []document.ID
		for doc, err := range c.Find(ctx, nil) {
			require.NoError(t, err)
			id, _ := doc.ID()
			left = append(left, id)
		}
		assert.Equal(t, []document.ID{keep}, left)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		c := newColl(t)
		assert.ErrorIs(t, c.DeleteOne(t.Context(), missingID), collection.ErrNotFound)
	})

	t.Run("ReturnedDocumentsAreCopies", func(t *testing.T) {
		c := newColl(t)
		ctx := t.Context()

		id := insert(t, c, document.Document{"nested": document.Map(document.Document{"k": document.String("v")})})

		got, err := c.FindOne(ctx, id)
		require.NoError(t, err)
		got["nested"].M["k"] = document.String("changed")

		again, err := c.FindOne(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, document.String("v"), again["nested"].M["k"])
	})
}

func insert(t *testing.T, c collection.Collection, doc document.Document) document.ID {
	t.Helper()
	id, err := c.InsertOne(t.Context(), doc)
	require.NoError(t, err)
	return id
}

// sampleDocument holds every value kind a collection stores verbatim.
func sampleDocument() document.Document {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	return document.Document{
		"name":      document.String("Important experiment"),
		"trial":     document.Int(3),
		"score":     document.Float(0.125),
		"active":    document.Bool(true),
		"nothing":   document.Null(),
		"created":   document.Time(ts),
		"tags":      document.Array([]document.Value{document.String("a"), document.Int(2)}),
		"meta":      document.Map(document.Document{"run": document.Int(7), "inner": document.Map(document.Document{"x": document.Float(1.5)})}),
		"data":      document.Ref("blob-ref-1"),
		"_blobRefs": document.Array([]document.Value{document.String("blob-ref-1")}),
	}
}
