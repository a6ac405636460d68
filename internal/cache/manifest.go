package cache

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/hanpama/apqgate/internal/apq"
	"github.com/hanpama/apqgate/internal/codec"
)

// ManifestFormat identifies an Apollo persisted query manifest.
const ManifestFormat = "apollo-persisted-query-manifest"

// Manifest is a list of operations known ahead of time, typically generated
// by the client build.
type Manifest struct {
	Format     string      `json:"format"`
	Version    int         `json:"version"`
	Operations []Operation `json:"operations"`
}

type Operation struct {
	ID   string `json:"id"`
	Body string `json:"body"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := codec.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "manifest: decode")
	}
	return &m, nil
}

func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "manifest: open")
	}
	defer f.Close()
	return ReadManifest(f)
}

// Verify checks the header, that every id is the digest of its body and that
// every body parses as a GraphQL document declaring the named operation.
func (m *Manifest) Verify() error {
	if m.Format != ManifestFormat {
		return errors.Errorf("manifest: unsupported format %q", m.Format)
	}
	if m.Version != 1 {
		return errors.Errorf("manifest: unsupported version %d", m.Version)
	}
	for i, op := range m.Operations {
		label := op.Name
		if label == "" {
			label = op.ID
		}
		if apq.Hash(op.Body) != op.ID {
			return errors.Errorf("manifest: operation %d (%s): id is not the sha256 of its body", i, label)
		}
		doc, err := parser.ParseQuery(&ast.Source{Name: label, Input: op.Body})
		if err != nil {
			return errors.Wrapf(err, "manifest: operation %d (%s)", i, label)
		}
		def := doc.Operations.ForName(op.Name)
		if def == nil {
			return errors.Errorf("manifest: operation %d (%s): body does not declare it", i, label)
		}
		if op.Type != "" && string(def.Operation) != op.Type {
			return errors.Errorf("manifest: operation %d (%s): type %q, body declares %q", i, label, op.Type, def.Operation)
		}
	}
	return nil
}

// Preload verifies m and stores every operation in c. It returns the number of
// operations written.
func Preload(ctx context.Context, c apq.Cache, m *Manifest, opts apq.CacheOptions) (int, error) {
	if err := m.Verify(); err != nil {
		return 0, err
	}
	for i, op := range m.Operations {
		if err := c.Put(ctx, op.ID, op.Body, opts); err != nil {
			return i, errors.Wrapf(err, "manifest: preload %s", op.ID)
		}
	}
	return len(m.Operations), nil
}
