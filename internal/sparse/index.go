// Package sparse implements a per-tenant BM25 lexical index over unit
// contents. The index is rebuilt wholesale after each ingestion batch and
// read concurrently by the query path; queries that race a rebuild observe
// either the pre- or post-rebuild state.
package sparse

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// BM25 parameters. Fixed constants, not tunables.
const (
	k1 = 1.5
	b  = 0.75
)

// wordPattern extracts term tokens: alphanumeric plus underscore, no
// stemming, no stopword removal.
var wordPattern = regexp.MustCompile(`\w+`)

// indexedUnit holds the per-unit term statistics needed to score it.
type indexedUnit struct {
	// unit is the indexed unit itself, returned on search hits.
	unit rag.Unit

	// termFreq maps term to its occurrence count in this unit.
	termFreq map[string]int

	// length is the total token count of the unit.
	length int
}

// Index is a BM25 index over one tenant's units. Safe for concurrent use:
// Rebuild takes the write lock, Search the read lock.
type Index struct {
	mu sync.RWMutex

	// units holds the indexed units in insertion order.
	units []indexedUnit

	// docFreq maps term to the number of units whose term set contains it.
	docFreq map[string]int
}

// NewIndex returns an empty BM25 index.
func NewIndex() *Index {
	return &Index{docFreq: make(map[string]int)}
}

// Rebuild replaces the index contents with the given units. It is a full
// replace, not an incremental merge — rebuilds happen only after a
// bounded-size ingestion batch, never per query.
func (ix *Index) Rebuild(units []rag.Unit) {
	indexed := make([]indexedUnit, 0, len(units))
	docFreq := make(map[string]int)

	for _, u := range units {
		terms := tokenize(u.Content)
		if len(terms) == 0 {
			continue
		}

		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			docFreq[t]++
		}

		indexed = append(indexed, indexedUnit{
			unit:     u,
			termFreq: tf,
			length:   len(terms),
		})
	}

	ix.mu.Lock()
	ix.units = indexed
	ix.docFreq = docFreq
	ix.mu.Unlock()
}

// Search scores every indexed unit against the query and returns the top-k
// by BM25 score, descending, with Score populated. Units scoring zero are
// omitted. k <= 0 returns all scoring units.
func (ix *Index) Search(query string, k int) []rag.Unit {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.units)
	if total == 0 {
		return nil
	}

	// Average unit length is computed once per search, never cached, so it
	// stays consistent across rebuilds.
	sumLen := 0
	for _, iu := range ix.units {
		sumLen += iu.length
	}
	avgLen := float64(sumLen) / float64(total)

	var results []rag.Unit
	for _, iu := range ix.units {
		score := ix.score(queryTerms, iu, avgLen, total)
		if score <= 0 {
			continue
		}
		u := iu.unit
		u.Score = score
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

// score computes the BM25 score of one unit for the given query terms.
// Terms with zero document frequency contribute nothing.
func (ix *Index) score(queryTerms []string, iu indexedUnit, avgLen float64, total int) float64 {
	score := 0.0
	for _, term := range queryTerms {
		tf := iu.termFreq[term]
		if tf == 0 {
			continue
		}
		df := ix.docFreq[term]
		if df == 0 {
			continue
		}

		idf := (float64(total) - float64(df) + 0.5) / (float64(df) + 0.5)
		if idf < 0 {
			idf = 0
		}

		numerator := float64(tf) * (k1 + 1)
		denominator := float64(tf) + k1*(1-b+b*float64(iu.length)/avgLen)
		score += idf * numerator / denominator
	}
	return score
}

// Len returns the number of indexed units.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.units)
}

// tokenize lowercases text and extracts word tokens.
func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}
