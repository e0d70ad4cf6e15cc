package document

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindArray represents a sequence of values.
	KindArray
	// KindMap represents a nested mapping.
	KindMap
	// KindTime represents a point in time.
	KindTime
	// KindNDArray represents a numeric array payload.
	KindNDArray
	// KindRef marks a value that was moved to the blob store.
	KindRef
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindNull:    "null",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindBool:    "bool",
	KindArray:   "array",
	KindMap:     "map",
	KindTime:    "time",
	KindNDArray: "ndarray",
	KindRef:     "ref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a typed document value.
//
// Only the field matching Kind is meaningful. The JSON form is tagged by kind so
// that it survives a trip through schemaless stores unchanged.
type Value struct {
	Kind Kind      `json:"k"`
	I64  int64     `json:"i,omitempty"`
	F64  float64   `json:"f,omitempty"`
	S    string    `json:"s,omitempty"`
	B    bool      `json:"b,omitempty"`
	A    []Value   `json:"a,omitempty"`
	M    Document  `json:"m,omitempty"`
	T    time.Time `json:"t,omitzero"`
	N    *NDArray  `json:"n,omitempty"`
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns a sequence Value.
func Array(v []Value) Value { return Value{Kind: KindArray, A: v} }

// Map returns a nested mapping Value.
func Map(v Document) Value { return Value{Kind: KindMap, M: v} }

// Time returns a time Value.
func Time(v time.Time) Value { return Value{Kind: KindTime, T: v} }

// NDArrayValue returns an array payload Value.
func NDArrayValue(a *NDArray) Value { return Value{Kind: KindNDArray, N: a} }

// Ref returns a marker Value pointing at an externalized blob.
func Ref(ref string) Value { return Value{Kind: KindRef, S: ref} }

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat.
func (v Value) AsFloat64() (float64, bool) {
	if v.Kind != KindFloat {
		return 0, false
	}
	return v.F64, true
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.S, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsArray returns the sequence if Kind is KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.A, true
}

// AsMap returns the nested document if Kind is KindMap.
func (v Value) AsMap() (Document, bool) {
	if v.Kind != KindMap {
		return nil, false
	}
	return v.M, true
}

// AsTime returns the time if Kind is KindTime.
func (v Value) AsTime() (time.Time, bool) {
	if v.Kind != KindTime {
		return time.Time{}, false
	}
	return v.T, true
}

// AsNDArray returns the array payload if Kind is KindNDArray.
func (v Value) AsNDArray() (*NDArray, bool) {
	if v.Kind != KindNDArray || v.N == nil {
		return nil, false
	}
	return v.N, true
}

// AsRef returns the blob reference if Kind is KindRef.
func (v Value) AsRef() (string, bool) {
	if v.Kind != KindRef {
		return "", false
	}
	return v.S, true
}

// Key returns a stable string representation for use in maps.
//
// Only scalar kinds are expected here; composite kinds fall back to a
// structural encoding.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.S
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindTime:
		return "t:" + strconv.FormatInt(v.T.UnixNano(), 10)
	case KindRef:
		return "r:" + v.S
	case KindArray:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	case KindMap:
		keys := v.M.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.M[k].Key()
		}
		return "m:" + strings.Join(parts, "\x1f")
	case KindNDArray:
		if v.N == nil {
			return "n:"
		}
		return "n:" + v.N.DType.String() + ":" + strconv.Itoa(len(v.N.Data))
	default:
		return "invalid"
	}
}

// Equal reports whether two values are structurally identical.
//
// Unlike filter equality, Equal does not coerce between ints and floats.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull, KindInvalid:
		return true
	case KindInt:
		return v.I64 == o.I64
	case KindFloat:
		return v.F64 == o.F64 || (math.IsNaN(v.F64) && math.IsNaN(o.F64))
	case KindString, KindRef:
		return v.S == o.S
	case KindBool:
		return v.B == o.B
	case KindTime:
		return v.T.Equal(o.T)
	case KindArray:
		return slices.EqualFunc(v.A, o.A, Value.Equal)
	case KindMap:
		return v.M.Equal(o.M)
	case KindNDArray:
		return v.N.Equal(o.N)
	default:
		return false
	}
}

// Clone creates a deep copy of a Value.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		if v.A == nil {
			return v
		}
		arr := make([]Value, len(v.A))
		for i := range v.A {
			arr[i] = v.A[i].Clone()
		}
		return Value{Kind: KindArray, A: arr}
	case KindMap:
		return Value{Kind: KindMap, M: v.M.Clone()}
	case KindNDArray:
		return Value{Kind: KindNDArray, N: v.N.Clone()}
	default:
		return v
	}
}

// ID identifies a stored document. Its format is owned by the collection.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id == "" }

// Document is a typed document: a mapping from keys to values.
type Document map[string]Value

// Clone creates a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v.Clone()
	}
	return clone
}

// Equal reports whether both documents hold the same keys with equal values.
func (d Document) Equal(o Document) bool {
	return maps.EqualFunc(d, o, Value.Equal)
}

// Keys returns the document keys in sorted order.
func (d Document) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// Path looks up a dotted key such as "meta.run.seed", descending through
// nested maps. Keys containing dots are not addressable this way.
func (d Document) Path(path string) (Value, bool) {
	cur := d
	for {
		key, rest, nested := strings.Cut(path, ".")
		v, ok := cur[key]
		if !ok {
			return Value{}, false
		}
		if !nested {
			return v, true
		}
		if cur, ok = v.AsMap(); !ok {
			return Value{}, false
		}
		path = rest
	}
}

// SetPath stores v under a dotted key, creating nested maps as needed. It
// fails if an intermediate key holds something other than a map.
func (d Document) SetPath(path string, v Value) bool {
	cur := d
	for {
		key, rest, nested := strings.Cut(path, ".")
		if !nested {
			cur[key] = v
			return true
		}
		next, ok := cur[key]
		if !ok {
			next = Map(Document{})
			cur[key] = next
		}
		if cur, ok = next.AsMap(); !ok || cur == nil {
			return false
		}
		path = rest
	}
}

// ID returns the document identifier stored under KeyID.
func (d Document) ID() (ID, bool) {
	s, ok := d[KeyID].AsString()
	if !ok || s == "" {
		return "", false
	}
	return ID(s), true
}

// BlobRefs returns the reference list stored under KeyBlobRefs.
func (d Document) BlobRefs() []string {
	arr, ok := d[KeyBlobRefs].AsArray()
	if !ok {
		return nil
	}
	refs := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.AsString(); ok {
			refs = append(refs, s)
		}
	}
	return refs
}

// Reserved keys injected into every saved document.
const (
	// KeyID holds the document identifier assigned by the collection.
	KeyID = "_id"
	// KeyBlobRefs holds the ordered reference identifiers of externalized arrays.
	KeyBlobRefs = "_blobRefs"
	// KeyInsertedAt holds the insertion timestamp.
	KeyInsertedAt = "insertion_date"
)
