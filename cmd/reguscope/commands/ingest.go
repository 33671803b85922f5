package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reguscope/reguscope-go/internal/embedder"
	"github.com/reguscope/reguscope-go/internal/ingestion"
	"github.com/reguscope/reguscope-go/internal/logging"
)

// NewIngestCmd constructs the `reguscope ingest` command, which chunks and
// indexes regulation documents into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var files []string
	var manifestPath string
	var recreate bool
	var documentID string
	var effectiveDate string
	var jurisdiction string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index regulation documents into the vector store",
		Long: `Chunk regulation documents, embed each chunk, and upsert the results into
the Qdrant collection the query pipeline searches.

Documents can be supplied individually with --file (metadata via flags) or in
bulk with a YAML --manifest keyed by file path:

  docs/gdpr.md:
    document_id: GDPR
    effective_date: "2018-05-25"
    jurisdiction: EU

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: regulatory_docs)
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)

Examples:
  reguscope ingest --manifest regulations.yaml --recreate
  reguscope ingest --file docs/gdpr.md --document-id GDPR --jurisdiction EU`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(files) == 0 && manifestPath == "" {
				return fmt.Errorf("ingest: --file or --manifest is required")
			}

			if err := embedder.ValidateForRetrieval(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")))

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			p, err := ingestion.New(emb, store, ingestion.Options{})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			if recreate {
				log.Warn("recreating collection, existing chunks will be dropped")
				if err := p.Recreate(ctx); err != nil {
					return fmt.Errorf("ingest: recreate collection: %w", err)
				}
			}

			total := 0

			if manifestPath != "" {
				manifest, err := ingestion.LoadManifest(manifestPath)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				n, err := p.IngestManifest(ctx, manifest)
				total += n
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			meta := ingestion.DocumentMeta{
				DocumentID:    documentID,
				EffectiveDate: effectiveDate,
				Jurisdiction:  jurisdiction,
			}
			for _, f := range files {
				n, err := p.IngestFile(ctx, f, meta)
				total += n
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			log.Info("ingestion complete", slog.Int("chunks", total))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Regulation document to ingest (repeatable)")
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "YAML manifest mapping file paths to document metadata")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection before ingesting")
	cmd.Flags().StringVar(&documentID, "document-id", "", "Document identifier for --file ingestion (e.g. GDPR)")
	cmd.Flags().StringVar(&effectiveDate, "effective-date", "", "Effective date for --file ingestion")
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction for --file ingestion (e.g. EU)")

	return cmd
}
