package rag

import (
	"strings"
	"testing"

	"ragchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// charCounter makes budget math exact in tests: one token per character.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

func payloadSize(p *types.ContextPayload) int {
	total := 0
	for _, m := range p.Messages {
		total += len(m.Content) + 4
	}
	return total
}

func chunk(content, title string, score float64) types.ScoredChunk {
	return types.ScoredChunk{Content: content, DocTitle: title, Score: score}
}

func TestBuildContextShape(t *testing.T) {
	b, err := NewContextBuilder(5, 100000, charCounter{})
	require.NoError(t, err)

	chunks := []types.ScoredChunk{
		chunk("best match", "Doc A", 0.9),
		chunk("second match", "Doc B", 0.5),
	}
	history := []types.Turn{
		{Role: types.RoleUser, Content: "earlier question"},
		{Role: types.RoleAssistant, Content: "earlier answer"},
	}

	payload := b.Build("new question", chunks, history)
	require.Len(t, payload.Messages, 4)

	system := payload.Messages[0]
	assert.Equal(t, types.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Context 1")
	assert.Contains(t, system.Content, "best match")
	assert.Contains(t, system.Content, "Context 2")
	assert.Less(t,
		strings.Index(system.Content, "best match"),
		strings.Index(system.Content, "second match"),
		"grounding must be rendered best-first")

	assert.Equal(t, types.RoleUser, payload.Messages[1].Role)
	assert.Equal(t, "earlier question", payload.Messages[1].Content)
	assert.Equal(t, types.RoleAssistant, payload.Messages[2].Role)

	last := payload.Messages[len(payload.Messages)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Equal(t, "new question", last.Content)

	assert.Equal(t, 2, payload.GroundingUsed)
	assert.Equal(t, 2, payload.HistoryUsed)
}

func TestBuildContextNoChunksDegradesExplicitly(t *testing.T) {
	b, err := NewContextBuilder(5, 100000, charCounter{})
	require.NoError(t, err)

	payload := b.Build("question", nil, nil)
	require.Len(t, payload.Messages, 2)
	assert.Contains(t, payload.Messages[0].Content, "general knowledge")
	assert.NotContains(t, payload.Messages[0].Content, "Context 1")
	assert.Equal(t, 0, payload.GroundingUsed)
}

func TestBuildContextHistoryWindow(t *testing.T) {
	b, err := NewContextBuilder(2, 100000, charCounter{})
	require.NoError(t, err)

	history := []types.Turn{
		{Role: types.RoleUser, Content: "turn 1"},
		{Role: types.RoleAssistant, Content: "turn 2"},
		{Role: types.RoleUser, Content: "turn 3"},
		{Role: types.RoleAssistant, Content: "turn 4"},
		{Role: types.RoleUser, Content: "turn 5"},
	}

	payload := b.Build("now", nil, history)
	require.Len(t, payload.Messages, 4) // system + 2 turns + user

	assert.Equal(t, "turn 4", payload.Messages[1].Content)
	assert.Equal(t, "turn 5", payload.Messages[2].Content)
	assert.Equal(t, "now", payload.Messages[3].Content)
	assert.Equal(t, 2, payload.HistoryUsed)
}

func TestBuildContextBudgetDropsLowestRankedFirst(t *testing.T) {
	full, err := NewContextBuilder(5, 100000, charCounter{})
	require.NoError(t, err)

	chunks := []types.ScoredChunk{
		chunk(strings.Repeat("a", 80), "Doc A", 0.9),
		chunk(strings.Repeat("b", 80), "Doc B", 0.4),
	}
	fullSize := payloadSize(full.Build("question", chunks, nil))

	b, err := NewContextBuilder(5, fullSize-1, charCounter{})
	require.NoError(t, err)

	payload := b.Build("question", chunks, nil)
	assert.Equal(t, 1, payload.GroundingUsed)
	assert.Contains(t, payload.Messages[0].Content, strings.Repeat("a", 80),
		"the best-ranked snippet survives")
	assert.NotContains(t, payload.Messages[0].Content, strings.Repeat("b", 80),
		"the lowest-ranked snippet is trimmed first")
}

func TestBuildContextBudgetShrinksHistoryAfterGrounding(t *testing.T) {
	full, err := NewContextBuilder(3, 100000, charCounter{})
	require.NoError(t, err)

	history := []types.Turn{
		{Role: types.RoleUser, Content: strings.Repeat("x", 60)},
		{Role: types.RoleAssistant, Content: strings.Repeat("y", 60)},
		{Role: types.RoleUser, Content: strings.Repeat("z", 60)},
	}
	fullSize := payloadSize(full.Build("question", nil, history))

	b, err := NewContextBuilder(3, fullSize-1, charCounter{})
	require.NoError(t, err)

	payload := b.Build("question", nil, history)
	assert.Equal(t, 2, payload.HistoryUsed)
	// Oldest turn dropped, order preserved.
	assert.Equal(t, strings.Repeat("y", 60), payload.Messages[1].Content)
	assert.Equal(t, strings.Repeat("z", 60), payload.Messages[2].Content)
}

func TestBuildContextNeverTrimsUserMessage(t *testing.T) {
	b, err := NewContextBuilder(2, 1, charCounter{})
	require.NoError(t, err)

	query := strings.Repeat("q", 500)
	chunks := []types.ScoredChunk{chunk("grounding", "Doc", 0.9)}
	history := []types.Turn{{Role: types.RoleUser, Content: "old"}}

	payload := b.Build(query, chunks, history)
	assert.Equal(t, 0, payload.GroundingUsed)
	assert.Equal(t, 0, payload.HistoryUsed)

	last := payload.Messages[len(payload.Messages)-1]
	assert.Equal(t, query, last.Content, "user message survives even an impossible budget")
}

func TestNewContextBuilderConfig(t *testing.T) {
	_, err := NewContextBuilder(-1, 100, charCounter{})
	assert.Error(t, err)

	_, err = NewContextBuilder(2, 0, charCounter{})
	assert.Error(t, err)

	_, err = NewContextBuilder(2, 100, nil)
	assert.Error(t, err)
}
