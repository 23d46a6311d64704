package rag

import (
	"fmt"
	"strings"

	"ragchat/types"
)

const groundedPreamble = `You are a helpful assistant answering questions about the user's documents.
Base your answer on the numbered context sections below. If they do not
contain enough information, say so instead of guessing. When you rely on a
specific section, mention its number.`

const ungroundedPreamble = `You are a helpful assistant. No document context is available for this
question; answer from your general knowledge and say that no uploaded
document covers it.`

// ContextBuilder assembles the prompt payload for one chat turn: grounding
// snippets in ranking order, a bounded window of prior turns and the new
// user message. It is a pure transform and never calls the completion
// service itself.
type ContextBuilder struct {
	historyWindow int
	budget        int
	counter       TokenCounter
}

func NewContextBuilder(historyWindow, budget int, counter TokenCounter) (*ContextBuilder, error) {
	if historyWindow < 0 {
		return nil, &ConfigurationError{Reason: "history window must not be negative"}
	}
	if budget <= 0 {
		return nil, &ConfigurationError{Reason: "context budget must be positive"}
	}
	if counter == nil {
		return nil, &ConfigurationError{Reason: "token counter is required"}
	}
	return &ContextBuilder{
		historyWindow: historyWindow,
		budget:        budget,
		counter:       counter,
	}, nil
}

// Build produces the payload for the completion call. When the payload
// exceeds the token budget, grounding snippets are dropped from the
// lowest-ranked end first, then the history window shrinks from the oldest
// turn. The user message is never trimmed, so the floor payload of
// preamble plus user message may still exceed a very small budget.
func (b *ContextBuilder) Build(query string, chunks []types.ScoredChunk, history []types.Turn) *types.ContextPayload {
	if len(history) > b.historyWindow {
		history = history[len(history)-b.historyWindow:]
	}

	grounding := len(chunks)
	for {
		payload := b.assemble(query, chunks[:grounding], history)
		if b.measure(payload) <= b.budget {
			return payload
		}
		if grounding > 0 {
			grounding--
			continue
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		return payload
	}
}

func (b *ContextBuilder) assemble(query string, chunks []types.ScoredChunk, history []types.Turn) *types.ContextPayload {
	messages := make([]types.PromptMessage, 0, len(history)+2)
	messages = append(messages, types.PromptMessage{
		Role:    types.RoleSystem,
		Content: systemPrompt(chunks),
	})
	for _, turn := range history {
		messages = append(messages, types.PromptMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, types.PromptMessage{Role: types.RoleUser, Content: query})

	return &types.ContextPayload{
		Messages:      messages,
		GroundingUsed: len(chunks),
		HistoryUsed:   len(history),
	}
}

func (b *ContextBuilder) measure(payload *types.ContextPayload) int {
	total := 0
	for _, m := range payload.Messages {
		// A few tokens per message cover the role and chat framing.
		total += b.counter.Count(m.Content) + 4
	}
	return total
}

// systemPrompt renders grounding snippets best-first with 1-based labels
// so the model can reference them in its answer. An empty retrieval result
// degrades to an explicit answer-from-general-knowledge instruction, never
// to a silently empty block.
func systemPrompt(chunks []types.ScoredChunk) string {
	if len(chunks) == 0 {
		return ungroundedPreamble
	}

	var sb strings.Builder
	sb.WriteString(groundedPreamble)
	sb.WriteString("\n\n")
	for i, ch := range chunks {
		fmt.Fprintf(&sb, "Context %d (from %q):\n%s\n\n", i+1, ch.DocTitle, ch.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
