// Package ingestion loads regulation documents, splits them into overlapping
// chunks, embeds each chunk, and upserts the results into the vector store
// with the compliance metadata retrieval depends on.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/reguscope/reguscope-go/internal/logging"
	"github.com/reguscope/reguscope-go/internal/rag"
)

// previewLength bounds the text_preview payload field stored alongside each
// chunk for cheap display without fetching full content.
const previewLength = 150

// embedBatchSize caps how many chunks are embedded and upserted per round
// trip so large documents do not produce oversized requests.
const embedBatchSize = 64

// Pipeline ingests regulation documents into the vector store.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	chunker  *Chunker
}

// Options configures an ingestion Pipeline.
type Options struct {
	// ChunkSize is the maximum chunk length in bytes (default 1000).
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks (default 200).
	ChunkOverlap int
}

// New constructs a Pipeline over the given embedder and store.
func New(embedder rag.Embedder, store rag.VectorStore, opts Options) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: vector store is required")
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(opts.ChunkSize, opts.ChunkOverlap),
	}, nil
}

// Recreate drops and recreates the target collection. Destructive; callers
// gate it behind an explicit flag.
func (p *Pipeline) Recreate(ctx context.Context) error {
	return p.store.Recreate(ctx)
}

// IngestFile reads one document, chunks it, and upserts the chunks with the
// given metadata. Returns the number of chunks written.
func (p *Pipeline) IngestFile(ctx context.Context, path string, meta DocumentMeta) (int, error) {
	log := logging.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("ingestion: read %s: %w", path, err)
	}

	chunks := p.chunker.Split(string(data))
	if len(chunks) == 0 {
		log.Warn("document produced no chunks", "file", path)
		return 0, nil
	}

	meta = meta.withDefaults()
	total := 0
	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		embeddings, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("ingestion: embed %s chunks %d-%d: %w", path, batchStart, batchEnd, err)
		}

		docs := make([]rag.Document, len(batch))
		for i, chunk := range batch {
			docs[i] = rag.Document{
				ID:      uuid.NewString(),
				Content: chunk,
				Metadata: map[string]string{
					"document_ID":      meta.DocumentID,
					"effective_date":   meta.EffectiveDate,
					"jurisdiction":     meta.Jurisdiction,
					"revision_history": meta.RevisionHistory,
					"section_number":   InferSection(chunk),
					"source_file":      path,
					"chunk_index":      strconv.Itoa(batchStart + i),
					"text_preview":     preview(chunk),
				},
			}
		}

		if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
			return total, fmt.Errorf("ingestion: upsert %s: %w", path, err)
		}
		total += len(batch)
	}

	log.Info("document ingested", "file", path, "document_id", meta.DocumentID, "chunks", total)
	return total, nil
}

// IngestManifest ingests every file listed in the manifest. Files are
// processed independently; the first failure aborts with the count written
// so far.
func (p *Pipeline) IngestManifest(ctx context.Context, m Manifest) (int, error) {
	total := 0
	for path, meta := range m {
		n, err := p.IngestFile(ctx, path, meta)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// preview bounds chunk to previewLength characters for the stored
// text_preview payload. Rune-based so multibyte characters survive intact.
func preview(chunk string) string {
	if r := []rune(chunk); len(r) > previewLength {
		chunk = string(r[:previewLength])
	}
	return chunk + "..."
}
