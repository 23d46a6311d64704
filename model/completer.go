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
	"ragchat/types"
)

// Usage is the token accounting reported by the completion provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completer generates an answer for an assembled context payload.
type Completer interface {
	Complete(ctx context.Context, payload *types.ContextPayload) (string, Usage, error)
}

// CompletionClient talks to an OpenAI-compatible chat completions
// endpoint (the hosted llama deployments expose the same wire shape).
type CompletionClient struct {
	apiURL      string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	client      *http.Client
	timeout     time.Duration
}

type completionRequest struct {
	Model       string                `json:"model"`
	Messages    []types.PromptMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float64               `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func NewCompletionClient(apiURL, model, apiKey string) *CompletionClient {
	return &CompletionClient{
		apiURL:      apiURL,
		model:       model,
		apiKey:      apiKey,
		maxTokens:   1000,
		temperature: 0.7,
		client:      &http.Client{},
		timeout:     60 * time.Second,
	}
}

// Complete sends the payload verbatim and returns the answer text with
// usage metadata. A 4xx response maps to ErrCompletionRejected (the
// provider refused the content); transport errors and 5xx map to
// ErrCompletionUnavailable. No retries happen here.
func (c *CompletionClient) Complete(ctx context.Context, payload *types.ContextPayload) (string, Usage, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    payload.Messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", rag.ErrCompletionUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: reading response: %v", rag.ErrCompletionUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		return "", Usage{}, fmt.Errorf("%w: status %d: %s", rag.ErrCompletionRejected, resp.StatusCode, respBody)
	default:
		return "", Usage{}, fmt.Errorf("%w: status %d: %s", rag.ErrCompletionUnavailable, resp.StatusCode, respBody)
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("%w: decoding response: %v", rag.ErrCompletionUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: response contains no choices", rag.ErrCompletionUnavailable)
	}

	return parsed.Choices[0].Message.Content, parsed.Usage, nil
}
