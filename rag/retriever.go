package rag

import (
	"context"
	"fmt"

	"ragchat/types"

	"github.com/google/uuid"
)

// CorpusProvider serves a complete, self-consistent snapshot of every
// stored chunk with its embedding and owning-document metadata.
type CorpusProvider interface {
	GetAllChunkVectors(ctx context.Context) ([]types.ChunkVector, error)
}

// Embedder turns a batch of texts into embedding vectors, one per input,
// in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever answers "which chunks are relevant to this query" over a fresh
// corpus snapshot. It owns no state between calls, so concurrent
// retrievals need no locking.
type Retriever struct {
	corpus   CorpusProvider
	embedder Embedder
	ranker   *Ranker
}

func NewRetriever(corpus CorpusProvider, embedder Embedder, ranker *Ranker) *Retriever {
	return &Retriever{
		corpus:   corpus,
		embedder: embedder,
		ranker:   ranker,
	}
}

// Retrieve embeds the query, ranks it against the full corpus and returns
// the topK chunks with document metadata attached. An empty corpus is a
// defined empty-result path and performs no embedding call.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	snapshot, err := r.corpus.GetAllChunkVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching corpus snapshot: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, nil
	}

	vecs, err := r.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query embedding, got %d", ErrEmbeddingUnavailable, len(vecs))
	}

	corpus := make([]Vector, len(snapshot))
	byID := make(map[uuid.UUID]*types.ChunkVector, len(snapshot))
	for i := range snapshot {
		corpus[i] = Vector{ID: snapshot[i].ChunkID, Values: snapshot[i].Embedding}
		byID[snapshot[i].ChunkID] = &snapshot[i]
	}

	matches, err := r.ranker.Rank(vecs[0], corpus, topK)
	if err != nil {
		return nil, err
	}

	scored := make([]types.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		cv := byID[m.ID]
		scored = append(scored, types.ScoredChunk{
			ChunkID:   cv.ChunkID,
			DocID:     cv.DocID,
			Position:  cv.Position,
			Content:   cv.Content,
			Score:     m.Score,
			DocTitle:  cv.DocTitle,
			DocSource: cv.DocSource,
		})
	}
	return scored, nil
}
