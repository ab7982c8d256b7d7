// Package rerank re-scores a short candidate list with a cross-encoder
// model for precision. Re-ranking is advisory: if the model is missing or
// scoring fails, the candidate order is preserved and only truncated —
// a re-ranking failure must never abort the request.
package rerank

import (
	"context"
	"log/slog"
	"sort"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// Reranker reorders retrieval candidates by cross-encoder relevance.
type Reranker struct {
	// encoder scores (query, text) pairs. May be nil, in which case
	// Rerank degrades to plain truncation.
	encoder rag.CrossEncoder

	// log records degraded-mode events.
	log *slog.Logger
}

// New constructs a Reranker. encoder may be nil to disable re-scoring.
func New(encoder rag.CrossEncoder, log *slog.Logger) *Reranker {
	if log == nil {
		log = slog.Default()
	}
	return &Reranker{encoder: encoder, log: log}
}

// Enabled reports whether a cross-encoder model is configured.
func (r *Reranker) Enabled() bool {
	return r.encoder != nil
}

// Rerank scores every (query, candidate) pair independently, sorts the
// candidates by score descending (stable, so exact ties keep their original
// order), and returns the top topK. On any scoring error the original order
// is returned truncated to topK.
func (r *Reranker) Rerank(ctx context.Context, query string, units []rag.Unit, topK int) []rag.Unit {
	if topK <= 0 {
		topK = len(units)
	}

	if r.encoder == nil || len(units) == 0 {
		return truncate(units, topK)
	}

	scored := make([]rag.Unit, len(units))
	copy(scored, units)

	for i := range scored {
		score, err := r.encoder.Score(ctx, query, scored[i].Content)
		if err != nil {
			r.log.Warn("rerank: cross-encoder scoring failed, keeping retrieval order",
				slog.String("error", err.Error()),
			)
			return truncate(units, topK)
		}
		scored[i].Score = score
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return truncate(scored, topK)
}

// truncate returns at most topK units without reordering.
func truncate(units []rag.Unit, topK int) []rag.Unit {
	if len(units) <= topK {
		return units
	}
	return units[:topK]
}
