package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// mapEncoder scores each text from a fixed table.
type mapEncoder struct {
	scores map[string]float64
}

func (m *mapEncoder) Score(_ context.Context, _, text string) (float64, error) {
	return m.scores[text], nil
}

// failingEncoder always errors.
type failingEncoder struct{}

func (failingEncoder) Score(context.Context, string, string) (float64, error) {
	return 0, fmt.Errorf("model unavailable")
}

func candidates(n int) []rag.Unit {
	units := make([]rag.Unit, n)
	for i := range units {
		units[i] = rag.Unit{ID: fmt.Sprintf("u-%d", i), Content: fmt.Sprintf("candidate %d", i)}
	}
	return units
}

func Test_Rerank_ReordersByScore(t *testing.T) {
	t.Parallel()

	enc := &mapEncoder{scores: map[string]float64{
		"candidate 0": 0.1,
		"candidate 1": 0.9,
		"candidate 2": 0.5,
	}}
	r := New(enc, nil)

	got := r.Rerank(context.Background(), "q", candidates(3), 3)
	wantOrder := []string{"u-1", "u-2", "u-0"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func Test_Rerank_NilModelTruncatesInOriginalOrder(t *testing.T) {
	t.Parallel()

	r := New(nil, nil)
	units := candidates(8)

	got := r.Rerank(context.Background(), "q", units, 5)
	if len(got) != 5 {
		t.Fatalf("want 5 results, got %d", len(got))
	}
	for i := range got {
		if got[i].ID != units[i].ID {
			t.Errorf("position %d: order changed without a model", i)
		}
	}
}

func Test_Rerank_ScoringFailureFallsBackToTruncation(t *testing.T) {
	t.Parallel()

	r := New(failingEncoder{}, nil)
	units := candidates(8)

	got := r.Rerank(context.Background(), "q", units, 5)
	if len(got) != 5 {
		t.Fatalf("want 5 results, got %d", len(got))
	}
	for i := range got {
		if got[i].ID != units[i].ID {
			t.Errorf("position %d: order changed on scoring failure", i)
		}
	}
}

func Test_Rerank_TiesKeepOriginalOrder(t *testing.T) {
	t.Parallel()

	enc := &mapEncoder{scores: map[string]float64{
		"candidate 0": 0.5,
		"candidate 1": 0.5,
		"candidate 2": 0.5,
	}}
	r := New(enc, nil)

	got := r.Rerank(context.Background(), "q", candidates(3), 3)
	for i := range got {
		if got[i].ID != fmt.Sprintf("u-%d", i) {
			t.Errorf("position %d: ties should preserve original order, got %s", i, got[i].ID)
		}
	}
}

func Test_HTTPEncoder_Score(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "refund policy" || len(req.Texts) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.83}})
	}))
	defer srv.Close()

	enc := NewHTTPEncoder(&HTTPConfig{BaseURL: srv.URL})
	score, err := enc.Score(context.Background(), "refund policy", "our refund policy text")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0.83 {
		t.Errorf("want 0.83, got %f", score)
	}
}

func Test_HTTPEncoder_ServerErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	enc := NewHTTPEncoder(&HTTPConfig{BaseURL: srv.URL})
	if _, err := enc.Score(context.Background(), "q", "text"); err == nil {
		t.Error("want error on HTTP 500")
	}
}
