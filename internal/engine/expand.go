package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// maxExpansions caps how many paraphrases are kept per query, on top of
// the original.
const maxExpansions = 3

// expansionPrompt is the fixed instruction used to elicit paraphrases,
// one per output line.
const expansionPrompt = `Generate 2-3 alternative phrasings of this question that mean the same thing:

Question: %s

Alternatives (one per line):`

// QueryExpander rewrites a query into paraphrase variants before
// retrieval. Expansion is best effort: on any generation failure the
// original query is returned alone. Successful expansions are cached per
// exact query string for the lifetime of the engine instance.
type QueryExpander struct {
	// generator produces the paraphrases.
	generator rag.Generator

	// log records degraded-mode events.
	log *slog.Logger

	mu sync.Mutex
	// cache maps exact query string to its expansion list.
	cache map[string][]string
}

// NewQueryExpander constructs a QueryExpander around the given generator.
func NewQueryExpander(generator rag.Generator, log *slog.Logger) *QueryExpander {
	if log == nil {
		log = slog.Default()
	}
	return &QueryExpander{
		generator: generator,
		log:       log,
		cache:     make(map[string][]string),
	}
}

// Expand returns the query followed by up to three paraphrases. The
// original query is always first. Generation failure yields a singleton
// containing only the original query.
func (e *QueryExpander) Expand(ctx context.Context, query string) []string {
	e.mu.Lock()
	if cached, ok := e.cache[query]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	response, err := e.generator.Generate(ctx, fmt.Sprintf(expansionPrompt, query))
	if err != nil {
		e.log.Warn("expand: query expansion failed, using original query only",
			slog.String("error", err.Error()),
		)
		return []string{query}
	}

	expanded := []string{query}
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		expanded = append(expanded, line)
		if len(expanded) > maxExpansions {
			break
		}
	}

	e.mu.Lock()
	e.cache[query] = expanded
	e.mu.Unlock()

	return expanded
}
