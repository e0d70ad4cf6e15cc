package testutil

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/docstash/document"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillGaussian fills dst with values from a standard normal distribution.
func (r *RNG) FillGaussian(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()
	}
}

// Float64Array returns a float64 array of the given shape with standard
// normal values.
func (r *RNG) Float64Array(shape ...int) *document.NDArray {
	v := make([]float64, numElements(shape))
	r.FillGaussian(v)
	return must(document.FromFloat64s(shape, v))
}

// Float32Array returns a float32 array of the given shape with values in [0, 1).
func (r *RNG) Float32Array(shape ...int) *document.NDArray {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]float32, numElements(shape))
	for i := range v {
		v[i] = r.rand.Float32()
	}
	return must(document.FromFloat32s(shape, v))
}

// Int64Array returns an int64 array of the given shape.
func (r *RNG) Int64Array(shape ...int) *document.NDArray {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]int64, numElements(shape))
	for i := range v {
		v[i] = r.rand.Int63() - r.rand.Int63()
	}
	return must(document.FromInt64s(shape, v))
}

// Uint8Array returns a uint8 array of the given shape.
func (r *RNG) Uint8Array(shape ...int) *document.NDArray {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]uint8, numElements(shape))
	r.rand.Read(v)
	return must(document.FromUint8s(shape, v))
}

var dtypes = []document.DType{
	document.DTypeFloat32, document.DTypeFloat64,
	document.DTypeInt8, document.DTypeInt16, document.DTypeInt32, document.DTypeInt64,
	document.DTypeUint8, document.DTypeUint16, document.DTypeUint32, document.DTypeUint64,
}

// Array returns an array with a random dtype and a random shape of up to
// three dimensions, each at most 16 long. Empty and scalar arrays occur.
func (r *RNG) Array() *document.NDArray {
	r.mu.Lock()
	defer r.mu.Unlock()

	dtype := dtypes[r.rand.Intn(len(dtypes))]
	shape := make([]int, r.rand.Intn(4))
	for i := range shape {
		shape[i] = r.rand.Intn(17)
	}

	data := make([]byte, numElements(shape)*dtype.Size())
	for i := 0; i+8 <= len(data); i += 8 {
		binary.LittleEndian.PutUint64(data[i:], r.rand.Uint64())
	}
	for i := len(data) &^ 7; i < len(data); i++ {
		data[i] = byte(r.rand.Intn(256))
	}
	return must(document.NewNDArray(dtype, shape, data))
}

// Document returns a random document. Nested maps are generated down to
// depth levels. Arrays only appear directly under map keys, never inside
// sequences.
func (r *RNG) Document(depth int) document.Document {
	n := r.Intn(6) + 1
	doc := make(document.Document, n)
	for i := range n {
		key := fmt.Sprintf("k%d", i)
		switch kind := r.Intn(5); {
		case kind == 0:
			doc[key] = document.NDArrayValue(r.Array())
		case kind == 1 && depth > 0:
			doc[key] = document.Map(r.Document(depth - 1))
		case kind == 2:
			doc[key] = document.Array([]document.Value{r.Scalar(), r.Scalar()})
		default:
			doc[key] = r.Scalar()
		}
	}
	return doc
}

// Scalar returns a random scalar value.
func (r *RNG) Scalar() document.Value {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.rand.Intn(6) {
	case 0:
		return document.Int(r.rand.Int63n(1_000_000) - 500_000)
	case 1:
		return document.Float(r.rand.NormFloat64())
	case 2:
		return document.String(fmt.Sprintf("s%d", r.rand.Intn(1000)))
	case 3:
		return document.Bool(r.rand.Intn(2) == 1)
	case 4:
		return document.Time(time.UnixMilli(r.rand.Int63n(1 << 41)).UTC())
	default:
		return document.Null()
	}
}

// CountArrays returns the number of NDArray values in doc, including
// nested maps.
func CountArrays(doc document.Document) int {
	n := 0
	for _, v := range doc {
		switch v.Kind {
		case document.KindNDArray:
			n++
		case document.KindMap:
			n += CountArrays(v.M)
		}
	}
	return n
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func must(a *document.NDArray, err error) *document.NDArray {
	if err != nil {
		panic(err)
	}
	return a
}
