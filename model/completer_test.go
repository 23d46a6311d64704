package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragchat/rag"
	"ragchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *types.ContextPayload {
	return &types.ContextPayload{
		Messages: []types.PromptMessage{
			{Role: types.RoleSystem, Content: "You are helpful."},
			{Role: types.RoleUser, Content: "What is Go?"},
		},
	}
}

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, types.RoleUser, req.Messages[1].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Go is a language."}},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 5,
				"total_tokens":      17,
			},
		})
	}))
	defer srv.Close()

	c := NewCompletionClient(srv.URL, "test-model", "")
	answer, usage, err := c.Complete(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", answer)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, usage)
}

func TestCompleteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "content filtered", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewCompletionClient(srv.URL, "test-model", "")
	_, _, err := c.Complete(context.Background(), testPayload())
	assert.ErrorIs(t, err, rag.ErrCompletionRejected)
}

func TestCompleteUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "timeout", status: http.StatusRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "try later", tt.status)
			}))
			defer srv.Close()

			c := NewCompletionClient(srv.URL, "test-model", "")
			_, _, err := c.Complete(context.Background(), testPayload())
			assert.ErrorIs(t, err, rag.ErrCompletionUnavailable)
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewCompletionClient(srv.URL, "test-model", "")
	_, _, err := c.Complete(context.Background(), testPayload())
	assert.ErrorIs(t, err, rag.ErrCompletionUnavailable)
}
