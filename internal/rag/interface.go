// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, dense retrieval, embedding, cross-encoder
// scoring, and text generation. Concrete implementations (Qdrant, Ollama,
// etc.) satisfy these interfaces so the engine layer never depends on a
// specific backend.
package rag

import (
	"context"
)

// Unit is the smallest retrievable piece of tenant text. Units are
// immutable once indexed; re-ingesting a source produces new units.
type Unit struct {
	// ID is the unique identifier for this unit.
	ID string

	// Content is the text content of the unit. Always non-empty and at
	// least 3 characters after trimming once sanitized.
	Content string

	// SourceID identifies the document this unit was split from
	// (file path, URL, or upload id).
	SourceID string

	// BusinessID is the tenant namespace this unit belongs to.
	BusinessID string

	// ChunkIndex is the unit's sequence position within its document,
	// reassigned densely after sanitization drops invalid units.
	ChunkIndex int

	// ParentID links a child unit to its enclosing parent chunk when
	// hierarchical chunking is used. Empty for flat chunking.
	ParentID string

	// ParentSnippet holds the first ~500 characters of the parent chunk,
	// giving the generation step wider context. Empty for flat chunking.
	ParentSnippet string

	// Score is the relevance score assigned during retrieval. Its scale
	// depends on the retrieval method; scores from different methods are
	// not comparable until normalized.
	Score float64
}

// VectorStore is the interface for persisting and searching unit embeddings
// within a single tenant's collection. Implementations must be safe to call
// from multiple goroutines for reads; writers are serialized by the
// ingestion coordinator.
type VectorStore interface {
	// Upsert stores a batch of units with their pre-computed embeddings.
	// vectors must be parallel to units — vectors[i] embeds units[i].
	Upsert(ctx context.Context, units []Unit, vectors [][]float32) error

	// Search returns the top-k most similar units for the query embedding,
	// ranked by similarity with Score populated.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Unit, error)

	// Contents returns every unit currently stored in the collection.
	// Used to rebuild the sparse index after an ingestion batch.
	Contents(ctx context.Context) ([]Unit, error)

	// Count returns the number of units in the collection.
	Count(ctx context.Context) (uint64, error)

	// DeleteCollection removes the tenant's entire collection.
	DeleteCollection(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must
// preserve input order in batch calls.
type Embedder interface {
	// EmbedDocuments converts a batch of texts into embeddings.
	// The returned slice is parallel to the input slice.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery converts a single query string into an embedding.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoder scores the relevance of a (query, text) pair with a
// higher-precision model than embedding similarity. Used for second-pass
// re-ranking of a short candidate list.
type CrossEncoder interface {
	// Score returns a relevance score for the pair. Higher is more relevant.
	Score(ctx context.Context, query, text string) (float64, error)
}

// Generator produces a single-shot text completion for a prompt.
// No streaming contract is required by the engine.
type Generator interface {
	// Generate returns the model's completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever is the high-level dense-retrieval interface used by the engine.
// It combines query embedding and vector search.
type Retriever interface {
	// Retrieve returns the top-k most relevant units for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Unit, error)
}
