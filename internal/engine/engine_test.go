package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// vocab drives the fake embedder: each text embeds to a presence vector
// over these terms, so dot-product search behaves like term overlap.
var vocab = []string{"refund", "shipping", "warranty", "hours", "return", "policy", "days", "contact"}

func embedText(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(vocab))
	for i, w := range vocab {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	return v
}

type fakeEmbedder struct {
	mu         sync.Mutex
	batchSizes []int
	failQuery  bool
	failDocs   bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()
	if f.failDocs {
		return nil, errors.New("embedder unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.failQuery {
		return nil, errors.New("embedder unavailable")
	}
	return embedText(text), nil
}

type storedPoint struct {
	unit   rag.Unit
	vector []float32
}

type fakeStore struct {
	mu     sync.Mutex
	points map[string]storedPoint
	closed bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]storedPoint)}
}

func (s *fakeStore) Upsert(_ context.Context, units []rag.Unit, vectors [][]float32) error {
	if len(units) != len(vectors) {
		return fmt.Errorf("units/vectors length mismatch: %d vs %d", len(units), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range units {
		s.points[u.ID] = storedPoint{unit: u, vector: vectors[i]}
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, queryVector []float32, topK int) ([]rag.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []rag.Unit
	for _, p := range s.points {
		score := 0.0
		for i := range queryVector {
			if i < len(p.vector) {
				score += float64(queryVector[i] * p.vector[i])
			}
		}
		if score <= 0 {
			continue
		}
		u := p.unit
		u.Score = score
		results = append(results, u)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *fakeStore) Contents(_ context.Context) ([]rag.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	units := make([]rag.Unit, 0, len(s.points))
	for _, p := range s.points {
		units = append(units, p.unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

func (s *fakeStore) Count(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.points)), nil
}

func (s *fakeStore) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[string]storedPoint)
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "Our refund policy allows returns within 30 days.", nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testEngine(t *testing.T, cfg *Config, deps Deps) *Engine {
	t.Helper()
	if cfg.BusinessID == "" {
		cfg.BusinessID = "acme"
	}
	if deps.Embedder == nil {
		deps.Embedder = &fakeEmbedder{}
	}
	if deps.Store == nil {
		deps.Store = newFakeStore()
	}
	if deps.Generator == nil {
		deps.Generator = &fakeGenerator{}
	}
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	e, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

const refundDoc = `Our refund policy allows returns within 30 days of purchase. Refunds are issued to the original payment method.

Shipping takes 3-5 business days within the country. International shipping takes 7-14 days.

All products carry a one year warranty covering manufacturing defects.`

func Test_Engine_Ask_AnswersFromRetrievedContext(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	answer := e.Ask(ctx, "What is your refund policy?", AskOptions{})
	if answer.Text == apologyText {
		t.Fatalf("got apology, want generated answer")
	}
	if answer.SourceCount == 0 {
		t.Fatalf("SourceCount = 0, want retrieved sources")
	}
	if answer.ResponseTimeMs < 0 {
		t.Fatalf("ResponseTimeMs = %d, want >= 0", answer.ResponseTimeMs)
	}

	prompt := gen.lastPrompt()
	if !strings.Contains(prompt, "refund policy allows returns") {
		t.Errorf("prompt missing retrieved context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: What is your refund policy?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
	if !strings.Contains(prompt, "customer support assistant") {
		t.Errorf("prompt missing system prompt:\n%s", prompt)
	}
}

func Test_Engine_Ask_GenerationFailureReturnsApology(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("model overloaded")}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	answer := e.Ask(ctx, "What is your refund policy?", AskOptions{})
	if answer.Text != apologyText {
		t.Fatalf("Text = %q, want apology", answer.Text)
	}
	if answer.SourceCount != 0 {
		t.Errorf("SourceCount = %d, want 0 on failure", answer.SourceCount)
	}
}

func Test_Engine_Ask_CachesIdenticalQuestions(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	opts := AskOptions{SessionID: "s-1"}
	first := e.Ask(ctx, "What is your refund policy?", opts)
	second := e.Ask(ctx, "What is your refund policy?", opts)

	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1 (second ask served from cache)", gen.calls)
	}
	if second.Text != first.Text {
		t.Errorf("cached Text = %q, want %q", second.Text, first.Text)
	}

	// A different session is a different cache key.
	e.Ask(ctx, "What is your refund policy?", AskOptions{SessionID: "s-2"})
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2 after new session", gen.calls)
	}

	e.ClearCache()
	e.Ask(ctx, "What is your refund policy?", opts)
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3 after ClearCache", gen.calls)
	}
}

func Test_Engine_Ask_DegradesToSparseWhenDenseFails(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	gen := &fakeGenerator{}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Embedder: emb, Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Dense retrieval now fails; BM25 must still supply candidates.
	emb.failQuery = true

	answer := e.Ask(ctx, "What is your refund policy?", AskOptions{})
	if answer.Text == apologyText {
		t.Fatalf("got apology, want sparse-only answer")
	}
	if answer.SourceCount == 0 {
		t.Fatalf("SourceCount = 0, want sparse candidates")
	}
	if !strings.Contains(gen.lastPrompt(), "refund policy allows returns") {
		t.Errorf("prompt missing sparse-retrieved context:\n%s", gen.lastPrompt())
	}
}

func Test_Engine_Ask_RendersConversationHistory(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	opts := AskOptions{SessionID: "s-1", UseContext: true}
	e.Ask(ctx, "What is your refund policy?", opts)
	e.Ask(ctx, "How long does shipping take?", opts)

	prompt := gen.lastPrompt()
	if !strings.Contains(prompt, "Previous conversation:") {
		t.Fatalf("prompt missing history section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User: What is your refund policy?") {
		t.Errorf("prompt missing prior user turn:\n%s", prompt)
	}

	e.ClearSession("s-1")
	e.Ask(ctx, "Do you offer a warranty?", opts)
	if strings.Contains(gen.lastPrompt(), "Previous conversation:") {
		t.Errorf("history survived ClearSession:\n%s", gen.lastPrompt())
	}
}

func Test_Engine_Ask_CustomSystemPrompt(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Generator: gen})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	e.Ask(ctx, "What is your refund policy?", AskOptions{
		SystemPrompt: "You are the support bot for Acme Widgets.",
	})
	prompt := gen.lastPrompt()
	if !strings.Contains(prompt, "Acme Widgets") {
		t.Errorf("prompt missing custom system prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "customer support assistant for this business") {
		t.Errorf("default system prompt not overridden:\n%s", prompt)
	}
}

func Test_Engine_Ask_ExpandedQueryCandidatesRankedByScore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctx := context.Background()
	err := store.Upsert(ctx, []rag.Unit{
		{ID: "a", Content: "Our refund policy details."},
		{ID: "b", Content: "Warranty and shipping info."},
	}, [][]float32{
		embedText("refund policy"),
		embedText("warranty shipping days"),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// The generator answers the paraphrase prompt with a single alternative
	// that retrieves the second unit at a higher score than the first
	// query's candidates.
	gen := &fakeGenerator{reply: "warranty shipping days"}
	e := testEngine(t, &Config{UseQueryExpansion: true}, Deps{Store: store, Generator: gen})

	units := e.retrieve(ctx, "refund policy")
	if len(units) != 2 {
		t.Fatalf("retrieved %d units, want 2", len(units))
	}
	if units[0].Content != "Warranty and shipping info." {
		t.Errorf("top candidate = %q (score %v), want the higher-scoring expansion hit",
			units[0].Content, units[0].Score)
	}
	if units[0].Score <= units[1].Score {
		t.Errorf("candidates not ranked by score: %v then %v", units[0].Score, units[1].Score)
	}
}

func Test_Engine_Ingest_EmptyDocument(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Store: store})

	ctx := context.Background()
	for _, text := range []string{"", "   \n\n  ", "a"} {
		n, err := e.Ingest(ctx, text, "empty.txt")
		if !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("Ingest(%q) error = %v, want ErrEmptyDocument", text, err)
		}
		if n != 0 {
			t.Errorf("Ingest(%q) = %d units, want 0", text, n)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("store count = %d, want 0 after empty ingests", count)
	}
}

func Test_Engine_Ingest_DeterministicIDs(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Store: store})

	ctx := context.Background()
	first, err := e.Ingest(ctx, refundDoc, "faq.txt")
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := e.Ingest(ctx, refundDoc, "faq.txt")
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if first != second {
		t.Errorf("unit counts differ across identical ingests: %d vs %d", first, second)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if int(count) != first {
		t.Errorf("store count = %d after re-ingest, want %d (upserts must overwrite)", count, first)
	}
}

func Test_Engine_Ingest_EmbedsInBoundedBatches(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	e := testEngine(t, &Config{ChunkSize: 40, ChunkOverlap: 0, UseHybridSearch: true}, Deps{Embedder: emb})

	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "Refund policy clause number %d applies here.\n\n", i)
	}
	n, err := e.Ingest(context.Background(), b.String(), "policy.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n <= ingestBatchSize {
		t.Fatalf("units = %d, want more than one batch worth", n)
	}

	total := 0
	for _, size := range emb.batchSizes {
		if size > ingestBatchSize {
			t.Errorf("embed batch size = %d, want <= %d", size, ingestBatchSize)
		}
		total += size
	}
	if total != n {
		t.Errorf("embedded %d texts across batches, want %d", total, n)
	}
}

// gatedStore blocks its first Upsert until gate is closed, signalling
// entered when the write begins.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) Upsert(ctx context.Context, units []rag.Unit, vectors [][]float32) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.gate
	})
	return s.fakeStore.Upsert(ctx, units, vectors)
}

// signalStore closes wrote on its first Upsert.
type signalStore struct {
	*fakeStore
	wrote chan struct{}
	once  sync.Once
}

func (s *signalStore) Upsert(ctx context.Context, units []rag.Unit, vectors [][]float32) error {
	s.once.Do(func() { close(s.wrote) })
	return s.fakeStore.Upsert(ctx, units, vectors)
}

func Test_Engine_Ingest_SerializedAcrossEngines(t *testing.T) {
	t.Parallel()

	first := &gatedStore{
		fakeStore: newFakeStore(),
		entered:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	second := &signalStore{
		fakeStore: newFakeStore(),
		wrote:     make(chan struct{}),
	}
	e1 := testEngine(t, &Config{BusinessID: "acme", UseHybridSearch: true}, Deps{Store: first})
	e2 := testEngine(t, &Config{BusinessID: "globex", UseHybridSearch: true}, Deps{Store: second})

	ctx := context.Background()
	errs := make(chan error, 2)

	go func() {
		_, err := e1.Ingest(ctx, refundDoc, "faq.txt")
		errs <- err
	}()
	<-first.entered

	go func() {
		_, err := e2.Ingest(ctx, refundDoc, "faq.txt")
		errs <- err
	}()

	// Index writes are serialized process-wide: while the first ingest
	// holds the write lock, the second tenant's ingest must not reach its
	// store.
	select {
	case <-second.wrote:
		t.Fatal("second ingest wrote while the first held the write lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(first.gate)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	select {
	case <-second.wrote:
	default:
		t.Fatal("second ingest never wrote after the lock was released")
	}
}

func Test_Engine_Ingest_EmbedFailureWrapsIndexWrite(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{failDocs: true}
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Embedder: emb})

	_, err := e.Ingest(context.Background(), refundDoc, "faq.txt")
	if !errors.Is(err, ErrIndexWrite) {
		t.Fatalf("error = %v, want ErrIndexWrite", err)
	}
}

func Test_Engine_GetStats(t *testing.T) {
	t.Parallel()

	e := testEngine(t, &Config{UseHybridSearch: true, UseReranking: false}, Deps{})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	e.Ask(ctx, "What is your refund policy?", AskOptions{SessionID: "s-1"})

	stats := e.GetStats(ctx)
	if stats.BusinessID != "acme" {
		t.Errorf("BusinessID = %q, want acme", stats.BusinessID)
	}
	if stats.UnitCount == 0 {
		t.Errorf("UnitCount = 0, want indexed units")
	}
	if stats.CachedResponses != 1 {
		t.Errorf("CachedResponses = %d, want 1", stats.CachedResponses)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", stats.ActiveSessions)
	}
	if !stats.HybridSearchEnabled {
		t.Errorf("HybridSearchEnabled = false, want true")
	}
	if stats.RerankingEnabled {
		t.Errorf("RerankingEnabled = true, want false")
	}
}

func Test_Engine_DeleteCollection(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	e := testEngine(t, &Config{UseHybridSearch: true}, Deps{Store: store})

	ctx := context.Background()
	if _, err := e.Ingest(ctx, refundDoc, "faq.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := e.DeleteCollection(ctx); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}

	stats := e.GetStats(ctx)
	if stats.UnitCount != 0 {
		t.Errorf("UnitCount = %d after delete, want 0", stats.UnitCount)
	}
	if got := e.sparse.Len(); got != 0 {
		t.Errorf("sparse index holds %d units after delete, want 0", got)
	}
}

func Test_Engine_New_Validation(t *testing.T) {
	t.Parallel()

	valid := Deps{
		Embedder:  &fakeEmbedder{},
		Store:     newFakeStore(),
		Generator: &fakeGenerator{},
		Logger:    quietLogger(),
	}

	if _, err := New(&Config{}, valid); err == nil {
		t.Errorf("New with empty business id: want error")
	}

	missing := valid
	missing.Embedder = nil
	if _, err := New(&Config{BusinessID: "acme"}, missing); err == nil {
		t.Errorf("New without embedder: want error")
	}

	missing = valid
	missing.Store = nil
	if _, err := New(&Config{BusinessID: "acme"}, missing); err == nil {
		t.Errorf("New without store: want error")
	}

	missing = valid
	missing.Generator = nil
	if _, err := New(&Config{BusinessID: "acme"}, missing); err == nil {
		t.Errorf("New without generator: want error")
	}
}

func Test_Registry_GetOrCreate(t *testing.T) {
	t.Parallel()

	var built []string
	factory := func(_ context.Context, businessID string, m *Metrics) (*Engine, error) {
		built = append(built, businessID)
		return New(&Config{BusinessID: businessID}, Deps{
			Embedder:  &fakeEmbedder{},
			Store:     newFakeStore(),
			Generator: &fakeGenerator{},
			Metrics:   m,
			Logger:    quietLogger(),
		})
	}

	reg := NewRegistry(factory, prometheus.NewRegistry(), quietLogger())
	ctx := context.Background()

	a1, err := reg.GetOrCreate(ctx, "acme")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	a2, err := reg.GetOrCreate(ctx, "acme")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a1 != a2 {
		t.Errorf("same tenant produced different engines")
	}

	if _, err := reg.GetOrCreate(ctx, "globex"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(built) != 2 {
		t.Errorf("factory invoked %d times, want 2", len(built))
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}

	reg.Evict("acme")
	if reg.Len() != 1 {
		t.Errorf("Len = %d after Evict, want 1", reg.Len())
	}

	reg.Close()
	if reg.Len() != 0 {
		t.Errorf("Len = %d after Close, want 0", reg.Len())
	}
}

func Test_Registry_FactoryFailureNotCached(t *testing.T) {
	t.Parallel()

	attempts := 0
	factory := func(_ context.Context, businessID string, m *Metrics) (*Engine, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("store unreachable")
		}
		return New(&Config{BusinessID: businessID}, Deps{
			Embedder:  &fakeEmbedder{},
			Store:     newFakeStore(),
			Generator: &fakeGenerator{},
			Metrics:   m,
			Logger:    quietLogger(),
		})
	}

	reg := NewRegistry(factory, nil, quietLogger())
	ctx := context.Background()

	if _, err := reg.GetOrCreate(ctx, "acme"); err == nil {
		t.Fatalf("first GetOrCreate: want error")
	}
	if _, err := reg.GetOrCreate(ctx, "acme"); err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if attempts != 2 {
		t.Errorf("factory attempts = %d, want 2", attempts)
	}
}
