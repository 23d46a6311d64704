package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/rag"
	"ragchat/store"
	"ragchat/types"

	"github.com/google/uuid"
)

// ErrNoIndexableText means chunking produced nothing to embed, e.g. an
// empty or whitespace-only document.
var ErrNoIndexableText = errors.New("document contains no indexable text")

// Service turns raw document text into persisted, embedded chunks. Both
// the HTTP upload handlers and the background loader go through it, so a
// document ingested either way ends up with identical chunk rows.
type Service struct {
	chunker  *rag.Chunker
	embedder rag.Embedder
	store    store.DBStorer
	dim      int
}

func New(chunker *rag.Chunker, embedder rag.Embedder, storer store.DBStorer, dim int) *Service {
	return &Service{
		chunker:  chunker,
		embedder: embedder,
		store:    storer,
		dim:      dim,
	}
}

// IngestDocument chunks, embeds and persists doc.Content. A zero doc.ID
// gets a fresh one; a caller-set ID re-ingests that document, replacing
// its chunks wholesale. The saved document is returned with ChunkCount
// filled in.
func (s *Service) IngestDocument(ctx context.Context, doc types.Document) (*types.Document, error) {
	chunks := s.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		return nil, ErrNoIndexableText
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", rag.ErrEmbeddingUnavailable, len(embeddings), len(chunks))
	}
	for _, emb := range embeddings {
		if len(emb) != s.dim {
			return nil, &rag.DimensionMismatchError{Want: s.dim, Got: len(emb)}
		}
	}

	now := time.Now().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
		doc.CreatedAt = now
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.ChunkCount = len(chunks)

	rows := make([]types.Chunk, len(chunks))
	for i, content := range chunks {
		rows[i] = types.Chunk{
			ID:        uuid.New(),
			DocID:     doc.ID,
			Position:  i,
			Content:   content,
			Embedding: embeddings[i],
		}
	}

	// One transaction: the document row and its chunk set land together
	// or not at all, so a failed re-ingest keeps the previous state.
	if err := s.store.ReplaceDocumentChunks(ctx, doc, rows); err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	return &doc, nil
}
