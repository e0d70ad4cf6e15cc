package document

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// DType is the element type of an NDArray.
type DType uint8

const (
	// DTypeInvalid is the zero DType.
	DTypeInvalid DType = iota
	DTypeFloat32
	DTypeFloat64
	DTypeInt8
	DTypeInt16
	DTypeInt32
	DTypeInt64
	DTypeUint8
	DTypeUint16
	DTypeUint32
	DTypeUint64
)

var dtypeInfo = [...]struct {
	name string
	size int
}{
	DTypeInvalid: {"invalid", 0},
	DTypeFloat32: {"float32", 4},
	DTypeFloat64: {"float64", 8},
	DTypeInt8:    {"int8", 1},
	DTypeInt16:   {"int16", 2},
	DTypeInt32:   {"int32", 4},
	DTypeInt64:   {"int64", 8},
	DTypeUint8:   {"uint8", 1},
	DTypeUint16:  {"uint16", 2},
	DTypeUint32:  {"uint32", 4},
	DTypeUint64:  {"uint64", 8},
}

// String returns the numpy-style name of the dtype.
func (d DType) String() string {
	if d.Valid() {
		return dtypeInfo[d].name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	if d.Valid() {
		return dtypeInfo[d].size
	}
	return 0
}

// Valid reports whether d is a known element type.
func (d DType) Valid() bool {
	return d > DTypeInvalid && int(d) < len(dtypeInfo)
}

// ParseDType returns the DType for a numpy-style name such as "float64".
func ParseDType(name string) (DType, error) {
	for i := DTypeFloat32; int(i) < len(dtypeInfo); i++ {
		if dtypeInfo[i].name == name {
			return i, nil
		}
	}
	return DTypeInvalid, fmt.Errorf("unknown dtype %q", name)
}

var (
	// ErrShapeMismatch is returned when data length does not match shape and dtype.
	ErrShapeMismatch = errors.New("array data does not match shape")
	// ErrDTypeMismatch is returned when a typed accessor is used on the wrong dtype.
	ErrDTypeMismatch = errors.New("array dtype mismatch")
)

// NDArray is a dense, homogeneous, row-major numeric array.
//
// Data holds the elements little-endian encoded. A zero-dimensional array
// (empty Shape) holds exactly one element.
type NDArray struct {
	DType DType  `json:"dtype"`
	Shape []int  `json:"shape"`
	Data  []byte `json:"data"`
}

// NewNDArray validates and wraps raw little-endian element bytes.
// The data slice is retained, not copied.
func NewNDArray(dtype DType, shape []int, data []byte) (*NDArray, error) {
	a := &NDArray{DType: dtype, Shape: slices.Clone(shape), Data: data}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks that Data holds exactly the bytes Shape and DType call
// for. Arrays built by hand from the exported fields should be validated
// before use.
func (a *NDArray) Validate() error {
	if !a.DType.Valid() {
		return fmt.Errorf("invalid dtype %d", uint8(a.DType))
	}
	n, err := numElements(a.Shape)
	if err != nil {
		return err
	}
	if n > math.MaxInt/a.DType.Size() || n*a.DType.Size() != len(a.Data) {
		return fmt.Errorf("%w: %s%v needs %d elements, got %d bytes", ErrShapeMismatch, a.DType, a.Shape, n, len(a.Data))
	}
	return nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrShapeMismatch, d)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrShapeMismatch, shape)
		}
		n *= d
	}
	return n, nil
}

// Len returns the number of elements.
func (a *NDArray) Len() int {
	n, _ := numElements(a.Shape)
	return n
}

// Equal reports exact equality of dtype, shape and element bytes.
func (a *NDArray) Equal(b *NDArray) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && bytes.Equal(a.Data, b.Data)
}

// Clone returns a deep copy.
func (a *NDArray) Clone() *NDArray {
	if a == nil {
		return nil
	}
	return &NDArray{DType: a.DType, Shape: slices.Clone(a.Shape), Data: bytes.Clone(a.Data)}
}

func (a *NDArray) String() string {
	return fmt.Sprintf("ndarray(%s, %v)", a.DType, a.Shape)
}

// FromFloat64s builds a float64 array with the given shape.
func FromFloat64s(shape []int, v []float64) (*NDArray, error) {
	data := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(x))
	}
	return NewNDArray(DTypeFloat64, shape, data)
}

// FromFloat32s builds a float32 array with the given shape.
func FromFloat32s(shape []int, v []float32) (*NDArray, error) {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(x))
	}
	return NewNDArray(DTypeFloat32, shape, data)
}

// FromInt64s builds an int64 array with the given shape.
func FromInt64s(shape []int, v []int64) (*NDArray, error) {
	data := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(x))
	}
	return NewNDArray(DTypeInt64, shape, data)
}

// FromInt32s builds an int32 array with the given shape.
func FromInt32s(shape []int, v []int32) (*NDArray, error) {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(x))
	}
	return NewNDArray(DTypeInt32, shape, data)
}

// FromUint8s builds a uint8 array with the given shape. v is copied.
func FromUint8s(shape []int, v []uint8) (*NDArray, error) {
	return NewNDArray(DTypeUint8, shape, bytes.Clone(v))
}

// Float64s decodes a float64 array.
func (a *NDArray) Float64s() ([]float64, error) {
	if a.DType != DTypeFloat64 {
		return nil, fmt.Errorf("%w: want float64, have %s", ErrDTypeMismatch, a.DType)
	}
	out := make([]float64, len(a.Data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[8*i:]))
	}
	return out, nil
}

// Float32s decodes a float32 array.
func (a *NDArray) Float32s() ([]float32, error) {
	if a.DType != DTypeFloat32 {
		return nil, fmt.Errorf("%w: want float32, have %s", ErrDTypeMismatch, a.DType)
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return out, nil
}

// Int64s decodes an int64 array.
func (a *NDArray) Int64s() ([]int64, error) {
	if a.DType != DTypeInt64 {
		return nil, fmt.Errorf("%w: want int64, have %s", ErrDTypeMismatch, a.DType)
	}
	out := make([]int64, len(a.Data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(a.Data[8*i:]))
	}
	return out, nil
}

// Int32s decodes an int32 array.
func (a *NDArray) Int32s() ([]int32, error) {
	if a.DType != DTypeInt32 {
		return nil, fmt.Errorf("%w: want int32, have %s", ErrDTypeMismatch, a.DType)
	}
	out := make([]int32, len(a.Data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return out, nil
}

// FromDense converts a gonum matrix into a 2-D float64 array.
func FromDense(m mat.Matrix) (*NDArray, error) {
	r, c := m.Dims()
	v := make([]float64, 0, r*c)
	for i := range r {
		for j := range c {
			v = append(v, m.At(i, j))
		}
	}
	return FromFloat64s([]int{r, c}, v)
}

// Dense converts a 2-D float64 array into a gonum matrix.
func (a *NDArray) Dense() (*mat.Dense, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("%w: dense needs 2 dimensions, have %d", ErrShapeMismatch, len(a.Shape))
	}
	v, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	if a.Shape[0] == 0 || a.Shape[1] == 0 {
		return nil, fmt.Errorf("%w: dense cannot be empty", ErrShapeMismatch)
	}
	return mat.NewDense(a.Shape[0], a.Shape[1], v), nil
}
