package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/docstash/document"
	"github.com/hupe1980/docstash/internal/conv"
	"github.com/hupe1980/docstash/internal/hash"
)

// ErrCorrupt is returned when an array payload fails validation.
var ErrCorrupt = errors.New("codec: corrupt array payload")

const (
	arrayMagic   = "DSNA"
	arrayVersion = 1

	// magic + version + dtype + compression
	arrayFixedHeader = len(arrayMagic) + 3

	// Guard allocations driven by a damaged header.
	maxDims       = 32
	maxArrayBytes = 1 << 36
)

// ArrayCodec serializes NDArray payloads into self-describing blobs.
//
// Layout:
//
//	"DSNA" | version u8 | dtype u8 | compression u8 |
//	ndim uvarint | dims uvarint... | rawLen uvarint | crc32c u32 | payload
//
// The checksum covers the uncompressed element bytes. Decode reads the
// compression from the header, so blobs written with different settings can
// be mixed in one store.
type ArrayCodec struct {
	Compression Compression
}

// NewArrayCodec returns an ArrayCodec using the given compression.
func NewArrayCodec(c Compression) *ArrayCodec {
	return &ArrayCodec{Compression: c}
}

// Encode serializes a.
func (c *ArrayCodec) Encode(a *document.NDArray) ([]byte, error) {
	if a == nil {
		return nil, errors.New("codec: nil array")
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	if len(a.Shape) > maxDims {
		return nil, fmt.Errorf("codec: %d dimensions exceed limit %d", len(a.Shape), maxDims)
	}

	payload, used, err := compress(a.Data, c.Compression)
	if err != nil {
		return nil, fmt.Errorf("codec: compress %s: %w", c.Compression, err)
	}

	buf := make([]byte, 0, arrayFixedHeader+binary.MaxVarintLen64*(len(a.Shape)+2)+4+len(payload))
	buf = append(buf, arrayMagic...)
	buf = append(buf, arrayVersion, byte(a.DType), byte(used))
	buf = binary.AppendUvarint(buf, uint64(len(a.Shape)))
	for _, d := range a.Shape {
		ud, err := conv.IntToUint64(d)
		if err != nil {
			return nil, fmt.Errorf("codec: dimension: %w", err)
		}
		buf = binary.AppendUvarint(buf, ud)
	}
	buf = binary.AppendUvarint(buf, uint64(len(a.Data)))
	buf = binary.LittleEndian.AppendUint32(buf, hash.CRC32C(a.Data))
	buf = append(buf, payload...)
	return buf, nil
}

// Decode parses a blob produced by Encode.
func (c *ArrayCodec) Decode(data []byte) (*document.NDArray, error) {
	if len(data) < arrayFixedHeader || string(data[:len(arrayMagic)]) != arrayMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	p := data[len(arrayMagic):]
	if p[0] != arrayVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, p[0])
	}
	dtype := document.DType(p[1])
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: invalid dtype %d", ErrCorrupt, p[1])
	}
	comp := Compression(p[2])
	p = p[3:]

	ndim, p, err := readUvarint(p)
	if err != nil {
		return nil, err
	}
	if ndim > maxDims {
		return nil, fmt.Errorf("%w: %d dimensions", ErrCorrupt, ndim)
	}
	shape := make([]int, ndim)
	expected := uint64(dtype.Size())
	for i := range shape {
		var d uint64
		d, p, err = readUvarint(p)
		if err != nil {
			return nil, err
		}
		if d != 0 && expected > maxArrayBytes/d {
			return nil, fmt.Errorf("%w: shape too large", ErrCorrupt)
		}
		expected *= d
		if shape[i], err = conv.Uint64ToInt(d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}

	rawLen, p, err := readUvarint(p)
	if err != nil {
		return nil, err
	}
	if rawLen != expected {
		return nil, fmt.Errorf("%w: length %d does not match shape %v", ErrCorrupt, rawLen, shape)
	}
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: truncated checksum", ErrCorrupt)
	}
	sum := binary.LittleEndian.Uint32(p)
	p = p[4:]

	raw, err := decompress(p, comp, int(rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, comp, err)
	}
	if uint64(len(raw)) != rawLen {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorrupt, len(raw), rawLen)
	}
	if hash.CRC32C(raw) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if comp == CompressionNone {
		// Detach from the caller's buffer, which may be mmapped or cached.
		raw = append([]byte(nil), raw...)
	}

	a, err := document.NewNDArray(dtype, shape, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return a, nil
}

func readUvarint(p []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(p)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	return v, p[n:], nil
}
