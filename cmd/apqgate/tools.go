package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hanpama/apqgate/internal/apq"
	"github.com/hanpama/apqgate/internal/cache"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [query]",
		Short: "Print the persisted query hash of a document",
		Long: `hash prints the lowercase hex SHA-256 of the query text, the value a
client sends as extensions.persistedQuery.sha256Hash. The query is read from
stdin when no argument is given. The text is hashed byte for byte.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "reading stdin")
				}
				query = string(b)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), apq.Hash(query))
			return err
		},
	}
}

func newManifestCmd() *cobra.Command {
	manifest := &cobra.Command{
		Use:   "manifest",
		Short: "Work with persisted query manifests",
	}
	manifest.AddCommand(&cobra.Command{
		Use:   "verify <file>",
		Short: "Check that every operation id matches the hash of its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := cache.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := m.Verify(); err != nil {
				return err
			}
			names := make([]string, 0, len(m.Operations))
			for _, op := range m.Operations {
				names = append(names, op.Name)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d operations (%s)\n",
				len(m.Operations), strings.Join(names, ", "))
			return err
		},
	})
	return manifest
}
