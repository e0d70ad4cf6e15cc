package codec

import gojson "github.com/goccy/go-json"

// GoJSON encodes documents with github.com/goccy/go-json.
//
// Rows are data, not markup, so '<', '>' and '&' are written as is. The
// output is still plain JSON and decodes with the JSON codec.
type GoJSON struct{}

// Marshal implements Codec.
func (GoJSON) Marshal(v any) ([]byte, error) {
	return gojson.MarshalWithOption(v, gojson.DisableHTMLEscape())
}

// Unmarshal implements Codec.
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name implements Codec.
func (GoJSON) Name() string { return "go-json" }

// Append implements Appender.
func (g GoJSON) Append(dst []byte, v any) ([]byte, error) {
	b, err := g.Marshal(v)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

var _ Appender = GoJSON{}
