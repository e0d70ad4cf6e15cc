package mongo

import (
	"fmt"
	"time"

	"github.com/hupe1980/docstash/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Values without a native BSON form are stored as single-field marker
// sub-documents keyed by these names.
const (
	refField   = "_docstashRef"
	arrayField = "_docstashArray"
	timeField  = "_docstashTime"
)

// toBSON converts a document to an ordered BSON document with sorted keys.
// The top-level _id key is skipped; identifiers are owned by the collection.
func toBSON(doc document.Document) (bson.D, error) {
	return mapToBSON(doc, true)
}

func mapToBSON(doc document.Document, top bool) (bson.D, error) {
	out := make(bson.D, 0, len(doc))
	for _, k := range doc.Keys() {
		if top && k == document.KeyID {
			continue
		}
		v, err := valueToBSON(doc[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out = append(out, bson.E{Key: k, Value: v})
	}
	return out, nil
}

func valueToBSON(v document.Value) (any, error) {
	switch v.Kind {
	case document.KindNull:
		return nil, nil
	case document.KindInt:
		return v.I64, nil
	case document.KindFloat:
		return v.F64, nil
	case document.KindString:
		return v.S, nil
	case document.KindBool:
		return v.B, nil
	case document.KindTime:
		return timeToBSON(v.T), nil
	case document.KindRef:
		// GridFS references keep their native ObjectID form.
		if oid, err := primitive.ObjectIDFromHex(v.S); err == nil {
			return oid, nil
		}
		return bson.D{{Key: refField, Value: v.S}}, nil
	case document.KindArray:
		arr := make(bson.A, len(v.A))
		for i, item := range v.A {
			b, err := valueToBSON(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = b
		}
		return arr, nil
	case document.KindMap:
		return mapToBSON(v.M, false)
	case document.KindNDArray:
		if v.N == nil {
			return nil, fmt.Errorf("nil ndarray")
		}
		shape := make(bson.A, len(v.N.Shape))
		for i, d := range v.N.Shape {
			shape[i] = int64(d)
		}
		return bson.D{{Key: arrayField, Value: bson.D{
			{Key: "dtype", Value: v.N.DType.String()},
			{Key: "shape", Value: shape},
			{Key: "data", Value: primitive.Binary{Data: v.N.Data}},
		}}}, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.Kind)
	}
}

// timeToBSON keeps millisecond-aligned times as native datetimes so range
// queries and indexes work on them. Finer times would be truncated by the
// BSON datetime, so they are stored as Unix nanoseconds in a marker.
func timeToBSON(t time.Time) any {
	dt := primitive.NewDateTimeFromTime(t)
	if dt.Time().Equal(t) {
		return dt
	}
	return bson.D{{Key: timeField, Value: t.UnixNano()}}
}

// fromBSON converts a decoded BSON document. The top-level _id ObjectID
// becomes the hex string identifier.
func fromBSON(d bson.D) (document.Document, error) {
	return mapFromBSON(d, true)
}

func mapFromBSON(d bson.D, top bool) (document.Document, error) {
	out := make(document.Document, len(d))
	for _, e := range d {
		if top && e.Key == document.KeyID {
			if oid, ok := e.Value.(primitive.ObjectID); ok {
				out[document.KeyID] = document.String(oid.Hex())
				continue
			}
		}
		v, err := valueFromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", e.Key, err)
		}
		out[e.Key] = v
	}
	return out, nil
}

func valueFromBSON(v any) (document.Value, error) {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return document.Null(), nil
	case int32:
		return document.Int(int64(x)), nil
	case int64:
		return document.Int(x), nil
	case float64:
		return document.Float(x), nil
	case string:
		return document.String(x), nil
	case bool:
		return document.Bool(x), nil
	case primitive.DateTime:
		return document.Time(x.Time().UTC()), nil
	case time.Time:
		return document.Time(x.UTC()), nil
	case primitive.ObjectID:
		return document.Ref(x.Hex()), nil
	case primitive.A:
		arr := make([]document.Value, len(x))
		for i, item := range x {
			val, err := valueFromBSON(item)
			if err != nil {
				return document.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = val
		}
		return document.Array(arr), nil
	case primitive.D:
		if len(x) == 1 {
			switch x[0].Key {
			case refField:
				if s, ok := x[0].Value.(string); ok {
					return document.Ref(s), nil
				}
			case arrayField:
				return arrayFromBSON(x[0].Value)
			case timeField:
				if ns, ok := x[0].Value.(int64); ok {
					return document.Time(time.Unix(0, ns).UTC()), nil
				}
			}
		}
		m, err := mapFromBSON(x, false)
		if err != nil {
			return document.Value{}, err
		}
		return document.Map(m), nil
	case primitive.M:
		d := make(primitive.D, 0, len(x))
		for k, val := range x {
			d = append(d, primitive.E{Key: k, Value: val})
		}
		return valueFromBSON(d)
	default:
		return document.Value{}, fmt.Errorf("unsupported BSON type %T", v)
	}
}

func arrayFromBSON(v any) (document.Value, error) {
	var fields primitive.D
	switch x := v.(type) {
	case primitive.D:
		fields = x
	case primitive.M:
		for k, val := range x {
			fields = append(fields, primitive.E{Key: k, Value: val})
		}
	default:
		return document.Value{}, fmt.Errorf("invalid ndarray encoding %T", v)
	}

	var (
		dtype document.DType
		shape []int
		data  []byte
		err   error
	)
	for _, e := range fields {
		switch e.Key {
		case "dtype":
			s, _ := e.Value.(string)
			if dtype, err = document.ParseDType(s); err != nil {
				return document.Value{}, err
			}
		case "shape":
			dims, ok := e.Value.(primitive.A)
			if !ok {
				return document.Value{}, fmt.Errorf("invalid ndarray shape %T", e.Value)
			}
			shape = make([]int, len(dims))
			for i, d := range dims {
				switch n := d.(type) {
				case int64:
					shape[i] = int(n)
				case int32:
					shape[i] = int(n)
				default:
					return document.Value{}, fmt.Errorf("invalid ndarray dimension %T", d)
				}
			}
		case "data":
			bin, ok := e.Value.(primitive.Binary)
			if !ok {
				return document.Value{}, fmt.Errorf("invalid ndarray data %T", e.Value)
			}
			data = bin.Data
		}
	}

	arr, err := document.NewNDArray(dtype, shape, data)
	if err != nil {
		return document.Value{}, err
	}
	return document.NDArrayValue(arr), nil
}
