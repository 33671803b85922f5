package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/reguscope/reguscope-go/internal/embedder"
	"github.com/reguscope/reguscope-go/internal/llm"
	"github.com/reguscope/reguscope-go/internal/pipeline"
	"github.com/reguscope/reguscope-go/internal/rag"
)

// defaultCollection is the Qdrant collection regulation chunks live in.
const defaultCollection = "regulatory_docs"

// buildStore connects to Qdrant using QDRANT_* env vars, sizing the
// collection vectors to the configured embedding backend.
func buildStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))
	return store, nil
}

// buildRetriever assembles the embedder and vector store into a Retriever.
// The returned close function releases the underlying Qdrant connection.
func buildRetriever(ctx context.Context, log *slog.Logger) (rag.Retriever, *rag.QdrantStore, func(), error) {
	if err := embedder.ValidateForRetrieval(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildStore(ctx, log)
	if err != nil {
		return nil, nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, store, getEnvInt("RETRIEVAL_TOP_K", 3))
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	return retriever, store, func() { _ = store.Close() }, nil
}

// buildWorkflow wires the LLM backend and retriever into a pipeline Workflow.
func buildWorkflow(ctx context.Context, log *slog.Logger) (*pipeline.Workflow, llm.Completer, *rag.QdrantStore, func(), error) {
	completer, err := llm.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialise LLM backend: %w", err)
	}
	log.Info("llm backend initialised", slog.String("provider", getEnvOrDefault("LLM_PROVIDER", "llamacpp")))

	retriever, store, closeStore, err := buildRetriever(ctx, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var timeout time.Duration
	if secs := getEnvInt("QUERY_TIMEOUT", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	workflow, err := pipeline.New(pipeline.Config{
		LLM:       completer,
		Retriever: retriever,
		TopK:      getEnvInt("RETRIEVAL_TOP_K", 3),
		Timeout:   timeout,
	})
	if err != nil {
		closeStore()
		return nil, nil, nil, nil, err
	}

	return workflow, completer, store, closeStore, nil
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or invalid.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
