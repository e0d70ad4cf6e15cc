package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Documents marshal to a kind-tagged form, so any codec that honours struct
// tags round-trips them. Use JSON when you want the most portable option.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the document codec used by the file-backed collections.
var Default Codec = GoJSON{}
