package embedder

import (
	"context"
	"strings"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// placeholder replaces null, empty, or whitespace-only input before it is
// sent to the embedding backend. Some backends error on empty strings and
// others return undefined vectors; the placeholder keeps batch shape and
// input order intact either way.
const placeholder = "empty"

// Sanitizing wraps a rag.Embedder and normalizes its input: every text is
// trimmed, and blank texts are replaced with the "empty" placeholder.
// The factory wraps every embedder it constructs, so callers can hand
// arbitrary unit content to EmbedDocuments without pre-checking it.
type Sanitizing struct {
	// inner is the wrapped embedding backend.
	inner rag.Embedder
}

// NewSanitizing wraps inner with input sanitization.
func NewSanitizing(inner rag.Embedder) *Sanitizing {
	return &Sanitizing{inner: inner}
}

// EmbedDocuments sanitizes each text and delegates to the wrapped embedder.
// The returned slice is parallel to the input slice.
func (s *Sanitizing) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	sanitized := make([]string, len(texts))
	for i, t := range texts {
		sanitized[i] = sanitizeText(t)
	}

	return s.inner.EmbedDocuments(ctx, sanitized)
}

// EmbedQuery sanitizes the query and delegates to the wrapped embedder.
func (s *Sanitizing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.inner.EmbedQuery(ctx, sanitizeText(text))
}

// sanitizeText trims whitespace and substitutes the placeholder for blank input.
func sanitizeText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return placeholder
	}
	return trimmed
}
