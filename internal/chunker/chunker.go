// Package chunker splits ingested document text into retrievable units.
// Two modes are supported: a flat semantic split that accumulates
// paragraphs up to a size budget, and a hierarchical split that produces
// child units linked to larger parent chunks for wider generation context.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters carried over from the
	// end of one chunk into the start of the next for continuity.
	DefaultChunkOverlap = 200

	// MinUnitLength is the minimum trimmed content length of a valid unit.
	// Shorter units are dropped during sanitization.
	MinUnitLength = 3

	// parentSnippetLen is how many characters of the parent chunk are
	// recorded on each child unit.
	parentSnippetLen = 500

	// parentSizeFactor scales the chunk size up for parent chunks in
	// hierarchical mode.
	parentSizeFactor = 3
)

// sentenceEnd matches a sentence terminator followed by whitespace. Used to
// break up paragraphs that exceed the chunk size on their own.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Config holds the settings for constructing a Splitter.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between
	// consecutive chunks. Defaults to 200 if negative or unset via New.
	ChunkOverlap int

	// Hierarchical enables parent/child chunking: parents of
	// ChunkSize×3 characters are split into children of ChunkSize, and
	// each child records its parent's id and leading snippet.
	Hierarchical bool
}

// Splitter turns raw document text into ordered units.
type Splitter struct {
	// chunkSize is the per-chunk character budget.
	chunkSize int

	// chunkOverlap is the continuity overlap between consecutive chunks.
	chunkOverlap int

	// hierarchical selects parent/child mode over the flat split.
	hierarchical bool
}

// New constructs a Splitter from the provided config, applying defaults.
func New(cfg *Config) *Splitter {
	if cfg == nil {
		cfg = &Config{}
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Splitter{
		chunkSize:    size,
		chunkOverlap: overlap,
		hierarchical: cfg.Hierarchical,
	}
}

// Split turns document text into an ordered sequence of units. Empty or
// whitespace-only input produces zero units. The returned units carry
// Content, ChunkIndex, and (in hierarchical mode) ParentID/ParentSnippet;
// the ingestion coordinator attaches tenant and source metadata.
func (s *Splitter) Split(text, sourceID string) []rag.Unit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.hierarchical {
		return s.hierarchicalSplit(text, sourceID)
	}

	chunks := semanticSplit(text, s.chunkSize, s.chunkOverlap)
	units := make([]rag.Unit, 0, len(chunks))
	for i, c := range chunks {
		units = append(units, rag.Unit{
			Content:    c,
			SourceID:   sourceID,
			ChunkIndex: i,
		})
	}
	return units
}

// hierarchicalSplit produces child units of chunkSize characters linked to
// parent chunks of chunkSize×3. Only children are returned — parents exist
// solely as snippets on their children.
func (s *Splitter) hierarchicalSplit(text, sourceID string) []rag.Unit {
	parents := semanticSplit(text, s.chunkSize*parentSizeFactor, s.chunkOverlap)

	var units []rag.Unit
	idx := 0
	for parentIdx, parent := range parents {
		parentID := fmt.Sprintf("%s_%d", sourceID, parentIdx)
		snippet := parent
		if runes := []rune(snippet); len(runes) > parentSnippetLen {
			snippet = string(runes[:parentSnippetLen])
		}

		for _, child := range semanticSplit(parent, s.chunkSize, s.chunkOverlap) {
			units = append(units, rag.Unit{
				Content:       child,
				SourceID:      sourceID,
				ChunkIndex:    idx,
				ParentID:      parentID,
				ParentSnippet: snippet,
			})
			idx++
		}
	}
	return units
}

// semanticSplit accumulates blank-line-separated paragraphs into chunks of
// at most chunkSize characters, seeding each new chunk with the last
// chunkOverlap characters of the previous one. A single paragraph larger
// than chunkSize is broken on sentence boundaries instead.
func semanticSplit(text string, chunkSize, chunkOverlap int) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	current := ""

	for _, para := range paragraphs {
		if len(current)+len(para) > chunkSize {
			if current != "" {
				chunks = appendChunk(chunks, current)
				current = overlapTail(current, chunkOverlap) + "\n\n" + para
			} else {
				chunks = append(chunks, splitLargeParagraph(para, chunkSize, chunkOverlap)...)
				current = ""
			}
		} else {
			if current != "" {
				current += "\n\n" + para
			} else {
				current = para
			}
		}
	}

	if current != "" {
		chunks = appendChunk(chunks, current)
	}

	return chunks
}

// splitLargeParagraph breaks an oversized paragraph on sentence boundaries
// using the same accumulate-and-overlap rule. There is no recursion below
// the sentence level: a single sentence longer than chunkSize is emitted
// as its own chunk.
func splitLargeParagraph(paragraph string, chunkSize, chunkOverlap int) []string {
	sentences := splitSentences(paragraph)

	var chunks []string
	current := ""

	for _, sent := range sentences {
		if len(current)+len(sent) > chunkSize {
			if current != "" {
				chunks = appendChunk(chunks, current)
				current = overlapTail(current, chunkOverlap) + " " + sent
			} else {
				current = sent
			}
		} else {
			if current != "" {
				current += " " + sent
			} else {
				current = sent
			}
		}
	}

	if current != "" {
		chunks = appendChunk(chunks, current)
	}

	return chunks
}

// splitSentences splits a paragraph after each `.`, `!`, or `?` that is
// followed by whitespace, keeping the terminator with its sentence.
func splitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(paragraph, -1) {
		sentences = append(sentences, paragraph[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(paragraph) {
		sentences = append(sentences, paragraph[start:])
	}
	return sentences
}

// appendChunk appends the trimmed chunk, skipping whitespace-only content.
func appendChunk(chunks []string, chunk string) []string {
	trimmed := strings.TrimSpace(chunk)
	if trimmed == "" {
		return chunks
	}
	return append(chunks, trimmed)
}

// overlapTail returns the last overlap characters of chunk, or the whole
// chunk when it is shorter than the overlap. Counted in runes so the cut
// never lands inside a multi-byte character.
func overlapTail(chunk string, overlap int) string {
	runes := []rune(chunk)
	if len(runes) <= overlap {
		return chunk
	}
	return string(runes[len(runes)-overlap:])
}

// Sanitize drops units whose content is shorter than MinUnitLength after
// trimming and reassigns chunk indices densely so downstream consumers see
// no gaps. Running Sanitize on an already-sanitized list is a no-op.
func Sanitize(units []rag.Unit) []rag.Unit {
	valid := make([]rag.Unit, 0, len(units))
	for _, u := range units {
		content := strings.TrimSpace(u.Content)
		if len(content) < MinUnitLength {
			continue
		}
		u.Content = content
		u.ChunkIndex = len(valid)
		valid = append(valid, u)
	}
	return valid
}
