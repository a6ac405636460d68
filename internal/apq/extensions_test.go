package apq

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		ext     Extensions
		want    Descriptor
		present bool
	}{
		{"absent", NoExtensions(), Descriptor{}, false},
		{"nil map", StructuredExtensions(nil), Descriptor{}, false},
		{"no block", StructuredExtensions(map[string]any{"foo": 1}), Descriptor{}, false},
		{"structured", pq("abc"), Descriptor{Version: 1, Hash: "abc"}, true},
		{"encoded", EncodedExtensions(`{"persistedQuery":{"version":1,"sha256Hash":"abc"}}`), Descriptor{Version: 1, Hash: "abc"}, true},
		{"encoded garbage", EncodedExtensions(`{not json`), Descriptor{}, false},
		{"encoded null", EncodedExtensions(`null`), Descriptor{}, false},
		{"block not object", StructuredExtensions(map[string]any{"persistedQuery": "abc"}), Descriptor{HashMalformed: true}, true},
		{"hash is number", pq(float64(42)), Descriptor{Version: 1, HashMalformed: true}, true},
		{"json number version", StructuredExtensions(map[string]any{
			"persistedQuery": map[string]any{"version": json.Number("2"), "sha256Hash": "abc"},
		}), Descriptor{Version: 2, Hash: "abc"}, true},
		{"no version", StructuredExtensions(map[string]any{
			"persistedQuery": map[string]any{"sha256Hash": "abc"},
		}), Descriptor{Hash: "abc"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := Extract(tt.ext, jsonDecoder{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if present != tt.present {
				t.Fatalf("present = %v, want %v", present, tt.present)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Descriptor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractEncodedRequiresDecoder(t *testing.T) {
	_, _, err := Extract(EncodedExtensions(`{}`), nil)
	if err != ErrDecoderRequired {
		t.Fatalf("err = %v, want ErrDecoderRequired", err)
	}
	// Structured extensions never need a decoder.
	if _, _, err := Extract(pq("abc"), nil); err != nil {
		t.Fatalf("structured: %v", err)
	}
}

func TestErrorKindNames(t *testing.T) {
	want := map[ErrorKind]string{
		HashFormatIncorrect:             "HashFormatIncorrect",
		QueryFormatIncorrect:            "QueryFormatIncorrect",
		PersistedQueryLargerThanMaxSize: "PersistedQueryLargerThanMaxSize",
		ProvidedShaDoesNotMatch:         "ProvidedShaDoesNotMatch",
		PersistedQueryNotFound:          "PersistedQueryNotFound",
	}
	for k, name := range want {
		if k.String() != name {
			t.Fatalf("%d.String() = %q, want %q", k, k.String(), name)
		}
		if (&Error{Kind: k}).Error() != name {
			t.Fatalf("Error() for %s", name)
		}
	}
	if ErrorKind(0).String() != "" || ErrorKind(99).String() != "" {
		t.Fatal("unknown kinds must have no name")
	}
}

func TestErrorKindResponse(t *testing.T) {
	b, err := json.Marshal(PersistedQueryNotFound.Response())
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != `{"errors":[{"message":"PersistedQueryNotFound"}]}` {
		t.Fatalf("got %s", got)
	}
}
