// Package engine implements the per-tenant retrieval and answering engine:
// hybrid sparse/dense retrieval with score fusion, cross-encoder
// re-ranking, query expansion, conversational memory, response caching,
// and the serialized ingestion path that keeps both indices current.
// Engines are created through the Registry, one per business id, each
// owning its own vector collection, BM25 index, cache, and sessions.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/docmind-ai/docmind-go/internal/chunker"
	"github.com/docmind-ai/docmind-go/internal/rag"
	"github.com/docmind-ai/docmind-go/internal/rerank"
	"github.com/docmind-ai/docmind-go/internal/sparse"
)

const (
	// defaultRetrieveK is how many candidates retrieval produces before
	// re-ranking.
	defaultRetrieveK = 10

	// defaultRerankK is how many candidates survive re-ranking and are
	// stuffed into the generation prompt.
	defaultRerankK = 5

	// defaultAlpha weights dense vs. sparse scores in hybrid fusion.
	defaultAlpha = 0.5
)

// defaultSystemPrompt frames the generation model as a support assistant
// constrained to the retrieved context.
const defaultSystemPrompt = `You are a helpful, friendly customer support assistant for this business.
Answer the question using ONLY the provided context below.
If the answer is not in the context, politely say "I don't have that information. Please contact us directly."

Be professional, concise, and helpful. Answer in the same language as the question.`

// apologyText is returned whenever answering fails. The Ask contract is
// that failures degrade to this canned response — they never surface as
// errors to the caller.
const apologyText = "I apologize, I'm having trouble right now. " +
	"Please try again or contact us directly."

// Config holds per-tenant engine settings.
type Config struct {
	// BusinessID is the tenant namespace. Required.
	BusinessID string

	// ChunkSize and ChunkOverlap configure the document splitter.
	ChunkSize    int
	ChunkOverlap int

	// HierarchicalChunking enables parent/child chunking.
	HierarchicalChunking bool

	// UseHybridSearch fuses BM25 with dense retrieval. When false the
	// query path is dense-only.
	UseHybridSearch bool

	// UseReranking enables cross-encoder re-ranking of candidates.
	UseReranking bool

	// UseQueryExpansion retrieves with LLM paraphrases of the question in
	// addition to the question itself.
	UseQueryExpansion bool

	// MaxTurns bounds conversation memory per session (default 5).
	MaxTurns int

	// RetrieveK is the candidate count produced by retrieval (default 10).
	RetrieveK int

	// RerankK is the candidate count surviving re-ranking (default 5).
	RerankK int

	// Alpha weights dense vs. sparse scores in [0,1] (default 0.5).
	Alpha float64

	// EmbedBatchesPerSec paces embedding calls during ingestion.
	// Zero disables pacing.
	EmbedBatchesPerSec float64
}

// Deps are the collaborators an engine is built from. Embedder, Store,
// and Generator are required; CrossEncoder, Metrics, and Logger are
// optional.
type Deps struct {
	Embedder     rag.Embedder
	Store        rag.VectorStore
	Generator    rag.Generator
	CrossEncoder rag.CrossEncoder
	Metrics      *Metrics
	Logger       *slog.Logger
}

// Engine answers questions for a single tenant from that tenant's
// document set. Query-path methods are safe for concurrent use; ingestion
// is serialized process-wide (see Ingest).
type Engine struct {
	businessID string

	splitter  *chunker.Splitter
	embedder  rag.Embedder
	store     rag.VectorStore
	retriever rag.Retriever
	sparse    *sparse.Index
	reranker  *rerank.Reranker
	generator rag.Generator
	expander  *QueryExpander
	memory    *ConversationMemory
	cache     *responseCache

	// limiter paces embedding batches during ingestion. Nil when disabled.
	limiter *rate.Limiter

	metrics *Metrics
	log     *slog.Logger

	useHybrid bool
	useRerank bool
	useExpand bool
	alpha     float64
	retrieveK int
	rerankK   int
}

// New constructs an Engine for one tenant. Collaborator misconfiguration
// is detected here so a malformed tenant fails at startup, not on its
// first query.
func New(cfg *Config, deps Deps) (*Engine, error) {
	if cfg == nil || cfg.BusinessID == "" {
		return nil, errMissingBusinessID
	}
	if deps.Embedder == nil {
		return nil, errMissingEmbedder
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Generator == nil {
		return nil, errMissingGenerator
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("business_id", cfg.BusinessID))

	retrieveK := cfg.RetrieveK
	if retrieveK <= 0 {
		retrieveK = defaultRetrieveK
	}
	rerankK := cfg.RerankK
	if rerankK <= 0 {
		rerankK = defaultRerankK
	}
	alpha := cfg.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = defaultAlpha
	}

	retriever, err := rag.NewRetriever(deps.Embedder, deps.Store, retrieveK)
	if err != nil {
		return nil, err
	}

	var encoder rag.CrossEncoder
	if cfg.UseReranking {
		encoder = deps.CrossEncoder
	}

	var limiter *rate.Limiter
	if cfg.EmbedBatchesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedBatchesPerSec), 1)
	}

	return &Engine{
		businessID: cfg.BusinessID,
		splitter: chunker.New(&chunker.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			Hierarchical: cfg.HierarchicalChunking,
		}),
		embedder:  deps.Embedder,
		store:     deps.Store,
		retriever: retriever,
		sparse:    sparse.NewIndex(),
		reranker:  rerank.New(encoder, log),
		generator: deps.Generator,
		expander:  NewQueryExpander(deps.Generator, log),
		memory:    NewConversationMemory(cfg.MaxTurns),
		cache:     newResponseCache(),
		limiter:   limiter,
		metrics:   deps.Metrics,
		log:       log,
		useHybrid: cfg.UseHybridSearch,
		useRerank: cfg.UseReranking,
		useExpand: cfg.UseQueryExpansion,
		alpha:     alpha,
		retrieveK: retrieveK,
		rerankK:   rerankK,
	}, nil
}

// AskOptions tunes a single Ask call.
type AskOptions struct {
	// SessionID keys conversation memory and the response cache. Empty
	// disables memory for this call.
	SessionID string

	// UseContext includes recent conversation history in the prompt.
	UseContext bool

	// SystemPrompt overrides the default system prompt when non-empty.
	SystemPrompt string
}

// Ask answers a question from the tenant's document set. It never returns
// an error: every failure on the answer path degrades to a canned apology
// with an accurate response time and a source count of zero.
func (e *Engine) Ask(ctx context.Context, question string, opts AskOptions) Answer {
	start := time.Now()

	if cached, ok := e.cache.Get(question, opts.SessionID); ok {
		e.log.Info("ask: returning cached response")
		e.metrics.observeQuestion(e.businessID, outcomeCacheHit, time.Since(start).Seconds())
		return cached
	}

	history := ""
	if opts.SessionID != "" && opts.UseContext {
		history = e.memory.Context(opts.SessionID)
	}

	units := e.retrieve(ctx, question)

	if e.useRerank && len(units) > 0 {
		units = e.reranker.Rerank(ctx, question, units, e.rerankK)
	} else if len(units) > e.rerankK {
		units = units[:e.rerankK]
	}

	prompt := buildPrompt(opts.SystemPrompt, history, units, question)

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.log.Error("ask: generation failed", slog.String("error", err.Error()))
		elapsed := time.Since(start)
		e.metrics.observeQuestion(e.businessID, outcomeDegraded, elapsed.Seconds())
		return Answer{
			Text:           apologyText,
			ResponseTimeMs: elapsed.Milliseconds(),
			SourceCount:    0,
		}
	}

	elapsed := time.Since(start)
	answer := Answer{
		Text:           strings.TrimSpace(text),
		ResponseTimeMs: elapsed.Milliseconds(),
		SourceCount:    len(units),
	}

	if opts.SessionID != "" {
		e.memory.AddTurn(opts.SessionID, question, answer.Text)
	}
	e.cache.Put(question, opts.SessionID, answer)

	e.log.Info("ask: question answered",
		slog.Int64("response_time_ms", answer.ResponseTimeMs),
		slog.Int("sources", answer.SourceCount),
	)
	e.metrics.observeQuestion(e.businessID, outcomeOK, elapsed.Seconds())

	return answer
}

// retrieve produces the candidate set for a question, optionally fanning
// out over query expansions. Dense-read failures degrade to sparse-only
// results; retrieval never fails the request.
func (e *Engine) retrieve(ctx context.Context, question string) []rag.Unit {
	queries := []string{question}
	if e.useExpand {
		queries = e.expander.Expand(ctx, question)
	}

	var merged []rag.Unit
	seen := make(map[string]int)

	for _, q := range queries {
		for _, u := range e.searchOne(ctx, q) {
			if i, ok := seen[u.Content]; ok {
				if u.Score > merged[i].Score {
					merged[i].Score = u.Score
				}
				continue
			}
			seen[u.Content] = len(merged)
			merged = append(merged, u)
		}
	}

	// Candidates arrive grouped by query, so a unit surfaced only by a
	// later expansion can outscore earlier ones. Re-rank by score before
	// truncating; the stable sort keeps per-query order on ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if len(merged) > e.retrieveK {
		merged = merged[:e.retrieveK]
	}
	return merged
}

// searchOne runs one hybrid (or dense-only) search for a single query.
func (e *Engine) searchOne(ctx context.Context, query string) []rag.Unit {
	if !e.useHybrid {
		units, err := e.retriever.Retrieve(ctx, query, e.retrieveK)
		if err != nil {
			e.log.Error("ask: dense search failed", slog.String("error", err.Error()))
			return nil
		}
		return units
	}

	dense, err := e.retriever.Retrieve(ctx, query, e.retrieveK*2)
	if err != nil {
		// Degrade to sparse-only rather than failing the request.
		e.log.Error("ask: dense search failed, degrading to sparse-only",
			slog.String("error", err.Error()),
		)
		dense = nil
	}
	sparse := e.sparse.Search(query, e.retrieveK*2)

	return fuse(dense, sparse, e.alpha, e.retrieveK)
}

// buildPrompt assembles the generation prompt from the system prompt,
// optional conversation history, retrieved context, and the question.
func buildPrompt(systemPrompt, history string, units []rag.Unit, question string) string {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	contents := make([]string, 0, len(units))
	for _, u := range units {
		contents = append(contents, u.Content)
	}
	context := strings.Join(contents, "\n\n")

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if history != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// ClearCache wipes the engine's response cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.log.Info("response cache cleared")
}

// ClearSession removes all conversation history for the session.
func (e *Engine) ClearSession(sessionID string) {
	e.memory.ClearSession(sessionID)
}

// Stats describes the engine's current state.
type Stats struct {
	BusinessID          string
	UnitCount           uint64
	CachedResponses     int
	ActiveSessions      int
	HybridSearchEnabled bool
	RerankingEnabled    bool
}

// GetStats reports the engine's unit count and in-memory state. A failed
// count is reported as zero rather than an error.
func (e *Engine) GetStats(ctx context.Context) Stats {
	count, err := e.store.Count(ctx)
	if err != nil {
		e.log.Error("stats: unit count failed", slog.String("error", err.Error()))
		count = 0
	}
	return Stats{
		BusinessID:          e.businessID,
		UnitCount:           count,
		CachedResponses:     e.cache.Len(),
		ActiveSessions:      e.memory.ActiveSessions(),
		HybridSearchEnabled: e.useHybrid,
		RerankingEnabled:    e.useRerank && e.reranker.Enabled(),
	}
}

// DeleteCollection removes the tenant's entire vector collection and
// resets the sparse index.
func (e *Engine) DeleteCollection(ctx context.Context) error {
	if err := e.store.DeleteCollection(ctx); err != nil {
		return err
	}
	e.sparse.Rebuild(nil)
	e.log.Info("collection deleted")
	return nil
}

// Close releases the engine's vector store connection.
func (e *Engine) Close() error {
	return e.store.Close()
}
