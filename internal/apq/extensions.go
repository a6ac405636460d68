package apq

import "encoding/json"

type extKind uint8

const (
	extAbsent extKind = iota
	extStructured
	extEncoded
)

// Extensions is the raw "extensions" field of a request. Transports deliver it
// either as an already-decoded object (JSON POST bodies) or as a JSON string
// (GET query parameters).
type Extensions struct {
	kind       extKind
	structured map[string]any
	encoded    string
}

func NoExtensions() Extensions { return Extensions{} }

func StructuredExtensions(m map[string]any) Extensions {
	if m == nil {
		return Extensions{}
	}
	return Extensions{kind: extStructured, structured: m}
}

func EncodedExtensions(s string) Extensions {
	if s == "" {
		return Extensions{}
	}
	return Extensions{kind: extEncoded, encoded: s}
}

func (e Extensions) IsAbsent() bool { return e.kind == extAbsent }

// Decoder is the JSON-decode capability used for encoded extensions.
type Decoder interface {
	Decode(data []byte, v any) error
}

// Descriptor is the persistedQuery block of a request.
type Descriptor struct {
	Version int
	Hash    string
	// HashMalformed is set when sha256Hash is missing or not a string.
	HashMalformed bool
}

const (
	extensionKey = "persistedQuery"
	hashKey      = "sha256Hash"
	versionKey   = "version"
)

// Extract locates the persistedQuery block in ext. The boolean result is false
// when the request does not use APQ. The only error is ErrDecoderRequired.
func Extract(ext Extensions, dec Decoder) (Descriptor, bool, error) {
	var m map[string]any
	switch ext.kind {
	case extAbsent:
		return Descriptor{}, false, nil
	case extStructured:
		m = ext.structured
	case extEncoded:
		if dec == nil {
			return Descriptor{}, false, ErrDecoderRequired
		}
		// An undecodable string carries no persistedQuery block we could read.
		if err := dec.Decode([]byte(ext.encoded), &m); err != nil {
			return Descriptor{}, false, nil
		}
	}

	raw, ok := m[extensionKey]
	if !ok || raw == nil {
		return Descriptor{}, false, nil
	}
	block, ok := raw.(map[string]any)
	if !ok {
		return Descriptor{HashMalformed: true}, true, nil
	}

	d := Descriptor{Version: versionOf(block[versionKey])}
	hash, ok := block[hashKey].(string)
	if !ok {
		d.HashMalformed = true
		return d, true, nil
	}
	d.Hash = hash
	return d, true, nil
}

func versionOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
