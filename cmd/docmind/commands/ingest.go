package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docmind-ai/docmind-go/internal/engine"
)

// NewIngestCmd constructs the `docmind ingest` command, which indexes plain
// text documents into a business's knowledge base.
func NewIngestCmd() *cobra.Command {
	var businessID string
	var files []string
	var sourceID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into a business's knowledge base",
		Long: `Chunk, embed, and index plain text documents for a business.

Each file becomes one document whose source id is its base name; piped stdin
becomes a single document named by --source. Ingestion is serialized
process-wide, so concurrent ingests for different businesses queue rather
than interleave index writes.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (endpoint, model, dimensions)

Examples:
  docmind ingest --business acme --file faq.txt --file policies.txt
  cat handbook.txt | docmind ingest --business acme --source handbook`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := requireBusiness(cmd, businessID); err != nil {
				return err
			}

			type document struct {
				sourceID string
				text     string
			}
			var docs []document

			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: reading %s: %w", path, err)
				}
				docs = append(docs, document{sourceID: filepath.Base(path), text: string(data)})
			}

			if len(files) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("ingest: reading stdin: %w", err)
				}
				if len(data) == 0 {
					return fmt.Errorf("ingest: no --file given and stdin is empty")
				}
				name := sourceID
				if name == "" {
					name = "stdin"
				}
				docs = append(docs, document{sourceID: name, text: string(data)})
			}

			reg, cleanup, err := newRegistry(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer cleanup()

			eng, err := reg.GetOrCreate(ctx, businessID)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			total := 0
			for _, doc := range docs {
				n, err := eng.Ingest(ctx, doc.text, doc.sourceID)
				if errors.Is(err, engine.ErrEmptyDocument) {
					log.Warn("document skipped: no indexable content",
						slog.String("source_id", doc.sourceID),
					)
					continue
				}
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", doc.sourceID, err)
				}
				total += n
			}

			fmt.Printf("indexed %d units across %d documents for %s\n", total, len(docs), businessID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&businessID, "business", "b", "", "Business id to ingest into (required)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Plain text file to ingest (repeatable)")
	cmd.Flags().StringVar(&sourceID, "source", "", "Source id for stdin input (default: stdin)")

	return cmd
}
