package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragchat/rag"
)

// EmbeddingClient talks to an OpenAI-compatible /v1/embeddings endpoint.
// It is a pure adapter: batching aside, it adds no behavior of its own.
type EmbeddingClient struct {
	apiURL  string
	model   string
	apiKey  string
	dim     int
	client  *http.Client
	timeout time.Duration
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewEmbeddingClient builds a client for one vectorizer configuration.
// dim is the dimension the deployment is expected to produce; every
// response is checked against it so config drift surfaces immediately.
func NewEmbeddingClient(apiURL, model, apiKey string, dim int) *EmbeddingClient {
	return &EmbeddingClient{
		apiURL:  apiURL,
		model:   model,
		apiKey:  apiKey,
		dim:     dim,
		client:  &http.Client{},
		timeout: 30 * time.Second,
	}
}

// EmbedBatch embeds texts in one request, returning vectors in input
// order. An empty batch returns an empty result without a network call.
// Transport failures and bad responses surface as ErrEmbeddingUnavailable.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", rag.ErrEmbeddingUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", rag.ErrEmbeddingUnavailable, resp.StatusCode, respBody)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", rag.ErrEmbeddingUnavailable, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", rag.ErrEmbeddingUnavailable, len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", rag.ErrEmbeddingUnavailable, d.Index)
		}
		if c.dim > 0 && len(d.Embedding) != c.dim {
			return nil, &rag.DimensionMismatchError{Want: c.dim, Got: len(d.Embedding)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
