package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/docmind-ai/docmind-go/internal/rag"
)

// HTTPEncoder implements rag.CrossEncoder against a rerank HTTP service
// (text-embeddings-inference or any server exposing the same /rerank
// contract). It is safe for concurrent use.
type HTTPEncoder struct {
	// baseURL is the rerank server base URL (e.g. "http://localhost:8081").
	baseURL string
	// model is the optional cross-encoder model name forwarded to the server.
	model string
	// apiKey is the optional Bearer token for hosted rerank services.
	apiKey string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// HTTPConfig holds the settings for constructing an HTTPEncoder.
type HTTPConfig struct {
	// BaseURL is the rerank server base URL.
	BaseURL string
	// Model is the optional model name (server default when empty).
	Model string
	// APIKey is the optional Bearer token.
	APIKey string
}

// NewHTTPEncoder constructs an HTTPEncoder from the given config.
func NewHTTPEncoder(cfg *HTTPConfig) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewFromEnv constructs a rag.CrossEncoder from RERANKER_ENDPOINT,
// RERANKER_MODEL, and RERANKER_API_KEY. Returns nil (re-ranking disabled)
// when RERANKER_ENDPOINT is unset — absence of a cross-encoder is a
// degraded mode, not an error.
func NewFromEnv() rag.CrossEncoder {
	endpoint := os.Getenv("RERANKER_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return NewHTTPEncoder(&HTTPConfig{
		BaseURL: endpoint,
		Model:   os.Getenv("RERANKER_MODEL"),
		APIKey:  os.Getenv("RERANKER_API_KEY"),
	})
}

// rerankRequest is the JSON body sent to the /rerank endpoint.
type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// rerankResult is one entry of the JSON array returned from /rerank.
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns the cross-encoder relevance of a single (query, text) pair.
func (e *HTTPEncoder) Score(ctx context.Context, query, text string) (float64, error) {
	body := rerankRequest{
		Query: query,
		Texts: []string{text},
		Model: e.model,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("rerank: HTTP %d", resp.StatusCode)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("rerank: expected 1 result, got %d", len(results))
	}

	return results[0].Score, nil
}
