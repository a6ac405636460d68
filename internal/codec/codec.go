// Package codec is the JSON codec shared by the HTTP layer and the APQ stage.
package codec

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON implements apq.Decoder.
type JSON struct{}

func (JSON) Decode(data []byte, v any) error { return api.Unmarshal(data, v) }

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// Marshal encodes v.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) *jsoniter.Decoder { return api.NewDecoder(r) }

// Encode writes v to w followed by a newline, indented when pretty is set.
func Encode(w io.Writer, v any, pretty bool) error {
	enc := api.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
