// Package rag defines the interfaces for the retrieval side of the
// compliance query pipeline: embedding, vector storage, and document
// retrieval. Concrete implementations (Qdrant, etc.) satisfy these
// interfaces so the pipeline layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document represents one chunk of regulatory text stored in, or retrieved
// from, the vector index.
type Document struct {
	// ID is the unique identifier for this chunk (a UUID at ingestion time).
	ID string

	// Content is the text of the chunk.
	Content string

	// Metadata holds the compliance payload fields attached to the chunk
	// (document_ID, section_number, effective_date, jurisdiction,
	// revision_history, source_file, chunk_index).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a similarity search and returns the top-k most
	// relevant documents for the given query embedding, best first.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Recreate drops the collection if it exists and creates it fresh.
	// Used by the ingestion job for a clean re-index.
	Recreate(ctx context.Context) error

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Returned vectors are L2-normalized by the backing model.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface the retrieval stage uses to fetch
// relevant regulation chunks for a sub-query. It combines embedding and
// vector search. Implementations must be safe to call from multiple
// goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
