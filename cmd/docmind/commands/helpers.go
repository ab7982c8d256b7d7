package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/docmind-ai/docmind-go/internal/embedder"
	"github.com/docmind-ai/docmind-go/internal/engine"
	"github.com/docmind-ai/docmind-go/internal/provider"
	"github.com/docmind-ai/docmind-go/internal/rag"
	"github.com/docmind-ai/docmind-go/internal/rerank"
	"github.com/docmind-ai/docmind-go/internal/tracing"
	"github.com/docmind-ai/docmind-go/internal/translog"
)

// newRegistry wires the embedder, chat model, reranker, and vector store
// factory into a tenant engine registry. The returned cleanup closes every
// engine and flushes pending traces; call it before process exit.
func newRegistry(ctx context.Context, log *slog.Logger) (*engine.Registry, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, fmt.Errorf("embedding configuration invalid: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	generator := provider.NewGenerator(chatModel)

	// Nil when RERANKER_ENDPOINT is unset; the engine then truncates
	// candidates instead of re-ranking.
	encoder := rerank.NewFromEnv()

	handler, flush, traced := tracing.Setup()
	if traced {
		callbacks.AppendGlobalHandlers(handler)
		log.Info("langfuse tracing enabled")
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded
	if d := getEnvInt("EMBEDDING_DIMENSIONS", 0); d > 0 {
		vectorSize = uint64(d) //nolint:gosec // dimensions are bounded
	}

	base := engine.Config{
		ChunkSize:            getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 0),
		HierarchicalChunking: getEnvBool("CHUNK_HIERARCHICAL", false),
		UseHybridSearch:      getEnvBool("ENGINE_HYBRID_SEARCH", true),
		UseReranking:         getEnvBool("ENGINE_RERANKING", true),
		UseQueryExpansion:    getEnvBool("ENGINE_QUERY_EXPANSION", false),
		MaxTurns:             getEnvInt("ENGINE_MAX_TURNS", 0),
		Alpha:                getEnvFloat("ENGINE_ALPHA", 0),
		EmbedBatchesPerSec:   getEnvFloat("ENGINE_EMBED_BATCHES_PER_SEC", 0),
	}

	factory := func(ctx context.Context, businessID string, m *engine.Metrics) (*engine.Engine, error) {
		store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: "business_" + businessID,
			VectorSize: vectorSize,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant for %s: %w", businessID, err)
		}

		cfg := base
		cfg.BusinessID = businessID
		return engine.New(&cfg, engine.Deps{
			Embedder:     emb,
			Store:        store,
			Generator:    generator,
			CrossEncoder: encoder,
			Metrics:      m,
			Logger:       log,
		})
	}

	reg := engine.NewRegistry(factory, prometheus.DefaultRegisterer, log)

	cleanup := func() {
		reg.Close()
		if flush != nil {
			flush()
		}
	}
	return reg, cleanup, nil
}

// openTranscript opens the transcript log configured by
// DOCMIND_TRANSCRIPT_DB. Returns nil when persistence is disabled; failures
// degrade to a warning so answering never depends on the transcript disk.
func openTranscript(log *slog.Logger) translog.TranscriptLog {
	path := os.Getenv("DOCMIND_TRANSCRIPT_DB")
	if path == "disabled" {
		return nil
	}
	if path == "" {
		p, err := translog.DefaultDBPath()
		if err != nil {
			log.Warn("transcript log unavailable", slog.String("error", err.Error()))
			return nil
		}
		path = p
	}
	tl, err := translog.Open(path)
	if err != nil {
		log.Warn("transcript log unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return tl
}

// requireBusiness validates the --business flag shared by tenant-scoped
// commands.
func requireBusiness(cmd *cobra.Command, businessID string) error {
	if businessID == "" {
		return fmt.Errorf("%s: --business is required", cmd.Name())
	}
	return nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvBool returns the boolean value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvFloat returns the float64 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
