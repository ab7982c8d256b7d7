package engine

import (
	"sort"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// fuse combines a dense candidate set and a sparse (BM25) candidate set
// into one ranked list of at most k units.
//
// Each set is normalized independently by its own maximum score — BM25
// scores and dense similarities live on unrelated numeric scales, and
// per-query max-normalization keeps alpha meaningful across queries of
// varying term rarity. Candidates are unioned by exact text content: a
// unit returned by both methods becomes a single entry whose combined
// score is alpha·normDense + (1−alpha)·normSparse, and a method that did
// not retrieve a unit contributes zero. Duplicate content within one set
// contributes once, at its best normalized score. Exact score ties keep
// first-seen (dense-rank) order via the stable sort.
func fuse(dense, sparse []rag.Unit, alpha float64, k int) []rag.Unit {
	maxDense := maxScore(dense)
	maxSparse := maxScore(sparse)

	type fused struct {
		unit        rag.Unit
		denseScore  float64
		sparseScore float64
	}

	var order []string
	byContent := make(map[string]*fused, len(dense)+len(sparse))

	for _, u := range dense {
		norm := 0.0
		if maxDense > 0 {
			norm = u.Score / maxDense
		}
		entry, ok := byContent[u.Content]
		if !ok {
			entry = &fused{unit: u}
			byContent[u.Content] = entry
			order = append(order, u.Content)
		}
		if norm > entry.denseScore {
			entry.denseScore = norm
		}
	}

	for _, u := range sparse {
		norm := 0.0
		if maxSparse > 0 {
			norm = u.Score / maxSparse
		}
		entry, ok := byContent[u.Content]
		if !ok {
			entry = &fused{unit: u}
			byContent[u.Content] = entry
			order = append(order, u.Content)
		}
		if norm > entry.sparseScore {
			entry.sparseScore = norm
		}
	}

	results := make([]rag.Unit, 0, len(order))
	for _, content := range order {
		entry := byContent[content]
		u := entry.unit
		u.Score = alpha*entry.denseScore + (1-alpha)*entry.sparseScore
		results = append(results, u)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// maxScore returns the largest score in the set, or 0 for an empty set.
func maxScore(units []rag.Unit) float64 {
	max := 0.0
	for _, u := range units {
		if u.Score > max {
			max = u.Score
		}
	}
	return max
}
