package docstash

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
	"github.com/hupe1980/docstash/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newMemoryAdapter(t *testing.T, optFns ...Option) (*Adapter, *collection.Memory, *blobstore.MemoryStore) {
	t.Helper()
	coll := collection.NewMemory()
	blobs := blobstore.NewMemoryStore()
	a := New(coll, blobs, optFns...)
	t.Cleanup(func() { _ = a.Close() })
	return a, coll, blobs
}

// stripReserved removes the keys Save adds.
func stripReserved(doc document.Document) document.Document {
	out := doc.Clone()
	delete(out, document.KeyID)
	delete(out, document.KeyBlobRefs)
	delete(out, document.KeyInsertedAt)
	return out
}

func loadOne(t *testing.T, a *Adapter, id document.ID, optFns ...LoadOption) document.Document {
	t.Helper()
	docs, err := a.LoadAll(t.Context(), document.ByID(id), optFns...)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return docs[0]
}

func experiment(t *testing.T) document.Document {
	t.Helper()
	rng := testutil.NewRNG(4711)
	return document.Document{
		"name":  document.String("Important experiment"),
		"trial": document.Int(3),
		"data":  document.NDArrayValue(rng.Float64Array(100, 100)),
	}
}

func TestSaveLoadExample(t *testing.T) {
	a, _, blobs := newMemoryAdapter(t)
	ctx := t.Context()

	doc := experiment(t)
	id, err := a.Save(ctx, doc)
	require.NoError(t, err)
	require.False(t, id.IsZero())
	assert.Equal(t, 1, blobs.Len())

	docs, err := a.LoadAll(ctx, document.NewFilterSet(document.Eq("name", document.String("Important experiment"))))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	got := docs[0]

	assert.Equal(t, document.String("Important experiment"), got["name"])
	assert.Equal(t, document.Int(3), got["trial"])
	arr, ok := got["data"].AsNDArray()
	require.True(t, ok)
	assert.Equal(t, []int{100, 100}, arr.Shape)
	assert.True(t, doc["data"].N.Equal(arr))

	gotID, ok := got.ID()
	require.True(t, ok)
	assert.Equal(t, id, gotID)
	assert.Len(t, got.BlobRefs(), 1)
	_, ok = got[document.KeyInsertedAt].AsTime()
	assert.True(t, ok)
}

func TestRoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) (collection.Collection, blobstore.BlobStore){
		"memory": func(t *testing.T) (collection.Collection, blobstore.BlobStore) {
			return collection.NewMemory(), blobstore.NewMemoryStore()
		},
		"jsonl+local": func(t *testing.T) (collection.Collection, blobstore.BlobStore) {
			dir := t.TempDir()
			coll, err := collection.NewJSONL(filepath.Join(dir, "docs.jsonl"), nil)
			require.NoError(t, err)
			blobs, err := blobstore.NewLocalStore(filepath.Join(dir, "blobs"))
			require.NoError(t, err)
			return coll, blobs
		},
		"bolt+local": func(t *testing.T) (collection.Collection, blobstore.BlobStore) {
			dir := t.TempDir()
			coll, err := collection.OpenBolt(filepath.Join(dir, "docs.db"), "docs", codec.JSON{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = coll.Close() })
			blobs, err := blobstore.NewLocalStore(filepath.Join(dir, "blobs"))
			require.NoError(t, err)
			return coll, blobs
		},
	}

	for name, newBackends := range backends {
		t.Run(name, func(t *testing.T) {
			coll, blobs := newBackends(t)
			a := New(coll, blobs, WithCompression(codec.CompressionZSTD))
			ctx := t.Context()
			rng := testutil.NewRNG(1)

			doc := document.Document{
				"name":   document.String("nested"),
				"matrix": document.NDArrayValue(rng.Float32Array(4, 8)),
				"meta": document.Map(document.Document{
					"labels": document.NDArrayValue(rng.Int64Array(16)),
					"note":   document.String("inner"),
				}),
				"tags":    document.Array([]document.Value{document.String("a"), document.Int(1)}),
				"created": document.Time(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
				"empty":   document.NDArrayValue(rng.Uint8Array(0)),
			}

			id, err := a.Save(ctx, doc)
			require.NoError(t, err)

			got := loadOne(t, a, id)
			assert.True(t, doc.Equal(stripReserved(got)), "got %v", got)

			again := loadOne(t, a, id)
			assert.True(t, got.Equal(again), "loads must be idempotent")
		})
	}
}

func TestRoundTripProperty(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)
	ctx := t.Context()

	rapid.Check(t, func(rt *rapid.T) {
		rng := testutil.NewRNG(rapid.Int64().Draw(rt, "seed"))
		doc := rng.Document(2)

		id, err := a.Save(ctx, doc)
		require.NoError(rt, err)

		docs, err := a.LoadByIDs(ctx, []document.ID{id})
		require.NoError(rt, err)
		require.Len(rt, docs, 1)
		require.NotNil(rt, docs[0])

		got := docs[0]
		assert.True(rt, doc.Equal(stripReserved(got)), "got %v", got)
		assert.Len(rt, got.BlobRefs(), testutil.CountArrays(doc))
	})
}

func TestSaveReferenceOrder(t *testing.T) {
	a, _, blobs := newMemoryAdapter(t)
	rng := testutil.NewRNG(2)

	doc := document.Document{
		"b": document.NDArrayValue(rng.Float64Array(2)),
		"a": document.NDArrayValue(rng.Float64Array(3)),
		"m": document.Map(document.Document{
			"z": document.NDArrayValue(rng.Float64Array(1)),
			"c": document.NDArrayValue(rng.Float64Array(1)),
		}),
		"n": document.Int(1),
	}

	id, err := a.Save(t.Context(), doc)
	require.NoError(t, err)
	assert.Equal(t, 4, blobs.Len())

	stored := loadOne(t, a, id, WithoutArrays())
	markers := []string{
		stored["a"].S,
		stored["b"].S,
		stored["m"].M["c"].S,
		stored["m"].M["z"].S,
	}
	for _, key := range []string{"a", "b"} {
		assert.Equal(t, document.KindRef, stored[key].Kind)
	}
	assert.Equal(t, markers, stored.BlobRefs())
	assert.Equal(t, document.Int(1), stored["n"])
}

func TestSaveWithoutArrays(t *testing.T) {
	a, _, blobs := newMemoryAdapter(t)

	doc := document.Document{"name": document.String("plain"), "n": document.Float(1.5)}
	id, err := a.Save(t.Context(), doc)
	require.NoError(t, err)
	assert.Equal(t, 0, blobs.Len())

	got := loadOne(t, a, id)
	refs, ok := got[document.KeyBlobRefs].AsArray()
	require.True(t, ok, "reference list must be present")
	assert.Empty(t, refs)
	assert.True(t, doc.Equal(stripReserved(got)))
}

func TestSaveDoesNotMutateInput(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)

	doc := experiment(t)
	doc["meta"] = document.Map(document.Document{"inner": document.NDArrayValue(testutil.NewRNG(3).Uint8Array(4))})
	before := doc.Clone()

	_, err := a.Save(t.Context(), doc)
	require.NoError(t, err)
	assert.True(t, before.Equal(doc))
}

func TestSaveInsertionDate(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 789_654_321, time.FixedZone("X", 3600))
	a, _, _ := newMemoryAdapter(t, WithClock(func() time.Time { return now }))

	id, err := a.Save(t.Context(), document.Document{"a": document.Int(1)})
	require.NoError(t, err)

	got := loadOne(t, a, id)
	ts, ok := got[document.KeyInsertedAt].AsTime()
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())
	assert.True(t, now.Truncate(time.Millisecond).Equal(ts))
	assert.Equal(t, 789_000_000, ts.Nanosecond())
}

func TestSaveSerializationErrors(t *testing.T) {
	arr := testutil.NewRNG(4).Float64Array(2)

	tests := []struct {
		name string
		doc  document.Document
		key  string
	}{
		{"array in sequence", document.Document{"list": document.Array([]document.Value{document.NDArrayValue(arr)})}, "list"},
		{"array in nested sequence", document.Document{"m": document.Map(document.Document{
			"list": document.Array([]document.Value{document.Map(document.Document{"x": document.NDArrayValue(arr)})}),
		})}, "m.list"},
		{"invalid value", document.Document{"bad": {}}, "bad"},
		{"nil array", document.Document{"nil": document.NDArrayValue(nil)}, "nil"},
		{"short data", document.Document{"data": document.NDArrayValue(&document.NDArray{
			DType: document.DTypeFloat64, Shape: []int{2, 2}, Data: make([]byte, 8),
		})}, "data"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, coll, _ := newMemoryAdapter(t)

			_, err := a.Save(t.Context(), tc.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSerialization)

			var se *SerializationError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.key, se.Key)
			assert.Equal(t, 0, coll.Len())
		})
	}
}

func TestSaveBlobWriteFailure(t *testing.T) {
	coll := collection.NewMemory()
	blobs := &faultyStore{BlobStore: blobstore.NewMemoryStore(), putErr: errors.New("disk full")}
	a := New(coll, blobs)

	_, err := a.Save(t.Context(), experiment(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, coll.Len())
}

func TestSaveInsertFailureLeavesOrphans(t *testing.T) {
	coll := new(mockCollection)
	coll.On("InsertOne", mock.Anything, mock.Anything).Return(document.ID(""), errors.New("connection reset"))

	blobs := blobstore.NewMemoryStore()
	a := New(coll, blobs)

	_, err := a.Save(t.Context(), experiment(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, 1, blobs.Len(), "written blobs are not rolled back")
	coll.AssertExpectations(t)
}

func TestSaveInsertsMarkersAndReservedKeys(t *testing.T) {
	coll := new(mockCollection)
	var inserted document.Document
	coll.On("InsertOne", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(document.Document) }).
		Return(document.ID("doc-1"), nil)

	a := New(coll, blobstore.NewMemoryStore())
	id, err := a.Save(t.Context(), experiment(t))
	require.NoError(t, err)
	assert.Equal(t, document.ID("doc-1"), id)

	require.NotNil(t, inserted)
	assert.Equal(t, document.KindRef, inserted["data"].Kind)
	assert.Equal(t, []string{inserted["data"].S}, inserted.BlobRefs())
	assert.Equal(t, document.KindTime, inserted[document.KeyInsertedAt].Kind)
	coll.AssertExpectations(t)
}

func TestSaveMany(t *testing.T) {
	a, coll, _ := newMemoryAdapter(t)

	docs := []document.Document{
		{"i": document.Int(1)},
		{"i": document.Int(2)},
		{"bad": {}},
		{"i": document.Int(4)},
	}
	ids, err := a.SaveMany(t.Context(), docs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, coll.Len())

	ids, err = a.SaveMany(t.Context(), docs[:2])
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestLoadQueryError(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)

	bad := document.NewFilterSet(document.Filter{Key: "a", Operator: "regex", Value: document.String("x")})
	_, err := a.LoadAll(t.Context(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuery)
}

func TestLoadStoreReadError(t *testing.T) {
	coll := new(mockCollection)
	failing := func(yield func(document.Document, error) bool) {
		yield(nil, errors.New("socket closed"))
	}
	coll.On("Find", mock.Anything, mock.Anything).Return(iter.Seq2[document.Document, error](failing))

	a := New(coll, blobstore.NewMemoryStore())
	_, err := a.LoadAll(t.Context(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.NotErrorIs(t, err, ErrQuery)
}

func TestLoadDanglingReference(t *testing.T) {
	a, _, blobs := newMemoryAdapter(t)
	ctx := t.Context()

	id, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)

	stored := loadOne(t, a, id, WithoutArrays())
	ref := blobstore.Ref(stored.BlobRefs()[0])
	require.NoError(t, blobs.Delete(ctx, ref))

	_, err = a.LoadAll(ctx, document.ByID(id))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	var bnf *BlobNotFoundError
	require.ErrorAs(t, err, &bnf)
	assert.Equal(t, ref, bnf.Ref)
	assert.Equal(t, string(id), bnf.DocumentID)

	// Metadata stays readable.
	_, err = a.LoadAll(ctx, document.ByID(id), WithoutArrays())
	assert.NoError(t, err)
}

func TestLoadCorruptBlob(t *testing.T) {
	coll := collection.NewMemory()
	mem := blobstore.NewMemoryStore()
	ctx := t.Context()

	id, err := New(coll, mem).Save(ctx, experiment(t))
	require.NoError(t, err)

	a := New(coll, &faultyStore{BlobStore: mem, getData: []byte("garbage")})
	_, err = a.LoadAll(ctx, document.ByID(id))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.ErrorIs(t, err, codec.ErrCorrupt)

	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "data", se.Key)
}

func TestLoadBlobReadError(t *testing.T) {
	coll := collection.NewMemory()
	mem := blobstore.NewMemoryStore()
	ctx := t.Context()

	_, err := New(coll, mem).Save(ctx, experiment(t))
	require.NoError(t, err)

	a := New(coll, &faultyStore{BlobStore: mem, getErr: errors.New("timeout")})
	_, err = a.LoadAll(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
}

func TestLoadStopsAfterError(t *testing.T) {
	a, _, blobs := newMemoryAdapter(t)
	ctx := t.Context()

	for range 3 {
		_, err := a.Save(ctx, experiment(t))
		require.NoError(t, err)
	}
	refs, err := blobs.List(ctx)
	require.NoError(t, err)
	for _, ref := range refs {
		require.NoError(t, blobs.Delete(ctx, ref))
	}

	n := 0
	for _, err := range a.Load(ctx, nil) {
		n++
		assert.Error(t, err)
	}
	assert.Equal(t, 1, n)
}

func TestLoadEarlyBreak(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)
	ctx := t.Context()

	for range 3 {
		_, err := a.Save(ctx, experiment(t))
		require.NoError(t, err)
	}

	n := 0
	for doc, err := range a.Load(ctx, nil) {
		require.NoError(t, err)
		require.NotNil(t, doc)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLoadLeavesUnlistedRefs(t *testing.T) {
	a, coll, _ := newMemoryAdapter(t)
	ctx := t.Context()

	id, err := coll.InsertOne(ctx, document.Document{
		"external":           document.Ref("not-mine"),
		document.KeyBlobRefs: document.Array(nil),
	})
	require.NoError(t, err)

	got := loadOne(t, a, id)
	assert.Equal(t, document.Ref("not-mine"), got["external"])
}

func TestLoadByIDs(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)
	ctx := t.Context()

	first, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)
	second, err := a.Save(ctx, document.Document{"n": document.Int(2)})
	require.NoError(t, err)

	docs, err := a.LoadByIDs(ctx, []document.ID{second, collection.NewID(), first})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, document.Int(2), docs[0]["n"])
	assert.Nil(t, docs[1])
	assert.Equal(t, document.KindNDArray, docs[2]["data"].Kind)

	docs, err = a.LoadByIDs(ctx, []document.ID{first}, WithoutArrays())
	require.NoError(t, err)
	assert.Equal(t, document.KindRef, docs[0]["data"].Kind)
}

func TestDelete(t *testing.T) {
	a, coll, blobs := newMemoryAdapter(t)
	ctx := t.Context()

	doc := experiment(t)
	doc["second"] = document.NDArrayValue(testutil.NewRNG(5).Float32Array(8))
	id, err := a.Save(ctx, doc)
	require.NoError(t, err)
	keep, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)
	require.Equal(t, 3, blobs.Len())

	require.NoError(t, a.Delete(ctx, id))
	assert.Equal(t, 1, blobs.Len())
	assert.Equal(t, 1, coll.Len())

	_, err = coll.FindOne(ctx, id)
	assert.ErrorIs(t, err, collection.ErrNotFound)
	_ = loadOne(t, a, keep)

	err = a.Delete(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIgnoresMissingBlobs(t *testing.T) {
	a, coll, blobs := newMemoryAdapter(t)
	ctx := t.Context()

	id, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)
	refs, err := blobs.List(ctx)
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(ctx, refs[0]))

	require.NoError(t, a.Delete(ctx, id))
	assert.Equal(t, 0, coll.Len())
}

func TestDeleteBlobFailure(t *testing.T) {
	coll := collection.NewMemory()
	mem := blobstore.NewMemoryStore()
	ctx := t.Context()

	id, err := New(coll, mem).Save(ctx, experiment(t))
	require.NoError(t, err)

	a := New(coll, &faultyStore{BlobStore: mem, deleteErr: errors.New("permission denied")})
	err = a.Delete(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Contains(t, err.Error(), "permission denied")

	assert.Equal(t, 0, coll.Len(), "document is deleted regardless")
	assert.Equal(t, 1, mem.Len())
}

func TestDeleteFindError(t *testing.T) {
	coll := new(mockCollection)
	coll.On("FindOne", mock.Anything, document.ID("x")).Return(nil, errors.New("network"))

	a := New(coll, blobstore.NewMemoryStore())
	err := a.Delete(t.Context(), "x")
	assert.ErrorIs(t, err, ErrStoreRead)
	coll.AssertNotCalled(t, "DeleteOne", mock.Anything, mock.Anything)
}

func TestClose(t *testing.T) {
	var order []string
	a := New(collection.NewMemory(), blobstore.NewMemoryStore(),
		WithCloser(func() error { order = append(order, "first"); return nil }),
		WithCloser(func() error { order = append(order, "second"); return errors.New("boom") }),
	)

	err := a.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, a.Close())
	assert.Len(t, order, 2)

	ctx := t.Context()
	_, err = a.Save(ctx, document.Document{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.LoadAll(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.LoadByIDs(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Delete(ctx, "x"), ErrClosed)
	_, err = a.Sweep(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMetrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a, _, _ := newMemoryAdapter(t, WithMetricsCollector(metrics), WithLogger(NewJSONLogger(100)))
	ctx := t.Context()

	id, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)
	_, err = a.Save(ctx, document.Document{"bad": {}})
	require.Error(t, err)
	_ = loadOne(t, a, id)
	require.NoError(t, a.Delete(ctx, id))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.SaveCount)
	assert.Equal(t, int64(1), stats.SaveErrors)
	assert.Equal(t, int64(1), stats.BlobsWritten)
	assert.Equal(t, int64(1), stats.LoadCount)
	assert.Equal(t, int64(1), stats.BlobsRead)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.BlobsDeleted)
}

func TestCompressionOption(t *testing.T) {
	for _, c := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			a, _, _ := newMemoryAdapter(t, WithCompression(c))
			zeros, err := document.FromFloat64s([]int{64, 64}, make([]float64, 64*64))
			require.NoError(t, err)
			doc := document.Document{"zeros": document.NDArrayValue(zeros)}

			id, err := a.Save(t.Context(), doc)
			require.NoError(t, err)
			got := loadOne(t, a, id)
			assert.True(t, doc.Equal(stripReserved(got)))
		})
	}
}

func TestLoadCanceled(t *testing.T) {
	a, _, _ := newMemoryAdapter(t)
	_, err := a.Save(t.Context(), experiment(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = a.LoadAll(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
