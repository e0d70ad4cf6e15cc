// Package codec centralizes document and array payload encoding.
//
// Codec selection is a breaking-change boundary: bytes written with one codec
// may not decode with another. Array payloads use a self-describing container
// (see ArrayCodec) so compression can change without breaking older blobs.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Appender is implemented by codecs that can encode into a caller buffer.
type Appender interface {
	Append(dst []byte, v any) ([]byte, error)
}

// AppendLine appends the encoding of v and a newline to dst.
func AppendLine(c Codec, dst []byte, v any) ([]byte, error) {
	if a, ok := c.(Appender); ok {
		out, err := a.Append(dst, v)
		if err != nil {
			return dst, err
		}
		return append(out, '\n'), nil
	}
	b, err := c.Marshal(v)
	if err != nil {
		return dst, err
	}
	return append(append(dst, b...), '\n'), nil
}

// ByName returns a built-in codec by its stable name.
//
// Used by the configuration layer to select the document codec of the
// file-backed collections.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json", "":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
