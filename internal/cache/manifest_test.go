package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/apqgate/internal/apq"
)

func manifestOf(ops ...Operation) *Manifest {
	return &Manifest{Format: ManifestFormat, Version: 1, Operations: ops}
}

func op(name, typ, body string) Operation {
	return Operation{ID: apq.Hash(body), Name: name, Type: typ, Body: body}
}

func TestReadManifest(t *testing.T) {
	body := "query Hello { hello }"
	src := `{"format":"apollo-persisted-query-manifest","version":1,"operations":[` +
		`{"id":"` + apq.Hash(body) + `","body":"query Hello { hello }","name":"Hello","type":"query"}]}`
	m, err := ReadManifest(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, manifestOf(op("Hello", "query", body)), m)
	require.NoError(t, m.Verify())

	_, err = ReadManifest(strings.NewReader("{"))
	require.Error(t, err)
}

func TestManifestVerify(t *testing.T) {
	good := op("Hello", "query", "query Hello { hello }")
	tests := []struct {
		name string
		m    *Manifest
		err  string
	}{
		{"ok", manifestOf(good, op("Bump", "mutation", "mutation Bump { bump }")), ""},
		{"anonymous", manifestOf(op("", "query", "{ hello }")), ""},
		{"format", &Manifest{Format: "other", Version: 1}, "unsupported format"},
		{"version", &Manifest{Format: ManifestFormat, Version: 2}, "unsupported version"},
		{"hash", manifestOf(Operation{ID: "abc", Name: "X", Body: "{ x }"}), "id is not the sha256"},
		{"syntax", manifestOf(op("Broken", "query", "query Broken {")), "Broken"},
		{"missing operation", manifestOf(op("Other", "query", "query Hello { hello }")), "does not declare"},
		{"type", manifestOf(op("Hello", "mutation", "query Hello { hello }")), `type "mutation"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Verify()
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.err)
		})
	}
}

func TestPreload(t *testing.T) {
	s, err := NewMemory(1<<20, 0)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	m := manifestOf(op("Hello", "query", "query Hello { hello }"), op("", "", "{ world }"))
	n, err := Preload(ctx, s, m, apq.CacheOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// A preloaded hash resolves without the client ever sending the text.
	r, err := apq.NewResolver(s)
	require.NoError(t, err)
	ext := apq.StructuredExtensions(map[string]any{
		"persistedQuery": map[string]any{"version": float64(1), "sha256Hash": apq.Hash("{ world }")},
	})
	out, err := r.Resolve(ctx, apq.Request{Extensions: ext})
	require.NoError(t, err)
	require.Equal(t, apq.Resolved("{ world }"), out)
}

func TestPreloadRefusesInvalidManifest(t *testing.T) {
	s, err := NewMemory(1<<20, 0)
	require.NoError(t, err)
	defer s.Close()
	m := manifestOf(Operation{ID: "abc", Body: "{ x }"})
	n, err := Preload(context.Background(), s, m, apq.CacheOptions{})
	require.Error(t, err)
	require.Zero(t, n)
	_, found, _ := s.Get(context.Background(), "abc", apq.CacheOptions{})
	require.False(t, found)
}
