package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BaSui01/ragflow/types"
)

var ingestIDPrefix string

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest plain-text documents into the index",
		Long: `Ingest reads UTF-8 text files, chunks and embeds them, and makes
them retrievable. Format-specific extraction (PDF, DOCX) happens
upstream; this command expects already-extracted text.

Examples:
  ragflow ingest notes.txt
  ragflow ingest --id-prefix=manual docs/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
	cmd.Flags().StringVar(&ingestIDPrefix, "id-prefix", "", "Prefix for generated document IDs")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	docs := make([]types.Document, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := filepath.Base(path)
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if ingestIDPrefix != "" {
			id = ingestIDPrefix + "-" + id
		}
		docs = append(docs, types.Document{
			ID:        id,
			Name:      name,
			MediaType: types.MediaTypeText,
			Blocks:    []string{string(data)},
		})
	}

	results := e.Ingest(cmd.Context(), docs)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", res.DocumentID, res.Err)
			continue
		}
		fmt.Printf("ok   %s (%d chunks)\n", res.DocumentID, res.Chunks)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}
