package mongo

import (
	"testing"
	"time"

	"github.com/hupe1980/docstash/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBSONRoundTrip(t *testing.T) {
	arr, err := document.FromFloat32s([]int{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	meta := document.Document{
		"_id":   document.Int(5),
		"inner": document.Map(document.Document{"x": document.Int(1)}),
	}
	doc := document.Document{
		"name":    document.String("Important experiment"),
		"trial":   document.Int(3),
		"score":   document.Float(0.5),
		"ok":      document.Bool(true),
		"nothing": document.Null(),
		"created": document.Time(ts),
		"tags":    document.Array([]document.Value{document.String("a"), document.Int(1)}),
		"meta":    document.Map(meta),
		"fine":    document.Time(time.Date(2024, 1, 2, 3, 4, 5, 123_456_789, time.UTC)),
		"uuidRef": document.Ref("3f2504e0-4f89-11d3-9a0c-0305e82c3301"),
		"gridRef": document.Ref("65a1b2c3d4e5f60718293a4b"),
		"inline":  document.NDArrayValue(arr),
	}

	encoded, err := toBSON(doc)
	require.NoError(t, err)

	// Keys are sorted.
	keys := make([]string, len(encoded))
	for i, e := range encoded {
		keys[i] = e.Key
	}
	assert.Equal(t, doc.Keys(), keys)

	// Decode through real BSON bytes so nested types match the driver's.
	raw, err := bson.Marshal(encoded)
	require.NoError(t, err)
	var decoded bson.D
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got, err := fromBSON(decoded)
	require.NoError(t, err)
	assert.True(t, doc.Equal(got), "got %v", got)
}

func TestBSONTimePrecision(t *testing.T) {
	ms := time.Date(2024, 1, 2, 3, 4, 5, 123_000_000, time.UTC)
	assert.Equal(t, primitive.NewDateTimeFromTime(ms), timeToBSON(ms))

	fine := ms.Add(456_789)
	assert.Equal(t, bson.D{{Key: timeField, Value: fine.UnixNano()}}, timeToBSON(fine))

	got, err := valueFromBSON(primitive.D{{Key: timeField, Value: fine.UnixNano()}})
	require.NoError(t, err)
	assert.True(t, document.Time(fine).Equal(got))
}

func TestBSONNestedIdentifier(t *testing.T) {
	oid := primitive.NewObjectID()

	got, err := fromBSON(bson.D{
		{Key: "_id", Value: oid},
		{Key: "meta", Value: bson.D{{Key: "_id", Value: oid}, {Key: "x", Value: int32(1)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, document.String(oid.Hex()), got[document.KeyID])
	meta, ok := got["meta"].AsMap()
	require.True(t, ok)
	assert.Equal(t, document.Ref(oid.Hex()), meta[document.KeyID])

	encoded, err := toBSON(document.Document{"meta": document.Map(document.Document{"_id": document.Int(5)})})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "meta", Value: bson.D{{Key: "_id", Value: int64(5)}}}}, encoded)
}

func TestBSONIdentifier(t *testing.T) {
	oid := primitive.NewObjectID()

	encoded, err := toBSON(document.Document{document.KeyID: document.String("ignored"), "a": document.Int(1)})
	require.NoError(t, err)
	assert.Len(t, encoded, 1)

	got, err := fromBSON(bson.D{{Key: "_id", Value: oid}, {Key: "a", Value: int32(7)}})
	require.NoError(t, err)
	assert.Equal(t, document.String(oid.Hex()), got[document.KeyID])
	assert.Equal(t, document.Int(7), got["a"])
}

func TestBSONUnsupported(t *testing.T) {
	_, err := fromBSON(bson.D{{Key: "dec", Value: primitive.NewDecimal128(1, 1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dec"`)

	_, err = toBSON(document.Document{"bad": {}})
	assert.Error(t, err)

	_, err = toBSON(document.Document{"nested": document.Array([]document.Value{{}})})
	assert.Error(t, err)
}

func TestBSONMapValues(t *testing.T) {
	got, err := valueFromBSON(primitive.M{"a": int64(1)})
	require.NoError(t, err)
	assert.True(t, document.Map(document.Document{"a": document.Int(1)}).Equal(got))

	got, err = valueFromBSON(primitive.D{{Key: refField, Value: "r1"}})
	require.NoError(t, err)
	assert.Equal(t, document.Ref("r1"), got)
}
