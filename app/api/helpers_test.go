package api

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"ragchat/ingest"
	"ragchat/model"
	"ragchat/rag"
	"ragchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// memStore is an in-memory DBStorer with the same observable semantics
// as the Postgres implementation: sql.ErrNoRows for missing rows, chat
// counters maintained on append, GetMessages returning the last N in
// chronological order.
type memStore struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]types.Document
	chunks   []types.Chunk
	chats    map[uuid.UUID]*types.ChatSession
	messages []types.Message
}

func newMemStore() *memStore {
	return &memStore{
		docs:  map[uuid.UUID]types.Document{},
		chats: map[uuid.UUID]*types.ChatSession{},
	}
}

func (m *memStore) ReplaceDocumentChunks(ctx context.Context, doc types.Document, chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	kept := m.chunks[:0]
	for _, ch := range m.chunks {
		if ch.DocID != doc.ID {
			kept = append(kept, ch)
		}
	}
	m.chunks = append(kept, chunks...)
	return nil
}

func (m *memStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (m *memStore) GetAllDocuments(ctx context.Context) ([]types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, id)
	kept := m.chunks[:0]
	for _, ch := range m.chunks {
		if ch.DocID != id {
			kept = append(kept, ch)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memStore) GetAllChunkVectors(ctx context.Context) ([]types.ChunkVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ChunkVector, len(m.chunks))
	for i, ch := range m.chunks {
		doc := m.docs[ch.DocID]
		out[i] = types.ChunkVector{
			ChunkID:   ch.ID,
			DocID:     ch.DocID,
			Position:  ch.Position,
			Content:   ch.Content,
			Embedding: ch.Embedding,
			DocTitle:  doc.Title,
			DocSource: doc.Source,
		}
	}
	return out, nil
}

func (m *memStore) GetDocumentStats(ctx context.Context) (*types.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &types.DocumentStats{
		TotalDocuments: len(m.docs),
		TotalChunks:    len(m.chunks),
	}
	if stats.TotalDocuments > 0 {
		stats.AvgChunksPerDoc = float64(stats.TotalChunks) / float64(stats.TotalDocuments)
	}
	return stats, nil
}

func (m *memStore) CreateChat(ctx context.Context) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	chat := &types.ChatSession{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	m.chats[chat.ID] = chat
	return chat, nil
}

func (m *memStore) GetChatByID(ctx context.Context, id uuid.UUID) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *chat
	return &copied, nil
}

func (m *memStore) GetAllChats(ctx context.Context) ([]types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ChatSession, 0, len(m.chats))
	for _, chat := range m.chats {
		out = append(out, *chat)
	}
	return out, nil
}

func (m *memStore) DeleteChat(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.chats, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ChatID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memStore) ClearChat(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return sql.ErrNoRows
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ChatID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	chat.MessageCount = 0
	chat.TotalTokens = 0
	chat.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) AppendMessage(ctx context.Context, msg types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[msg.ChatID]
	if !ok {
		return sql.ErrNoRows
	}
	m.messages = append(m.messages, msg)
	chat.MessageCount++
	chat.TotalTokens += msg.TokensUsed
	chat.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *memStore) GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []types.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			all = append(all, msg)
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) chatMessages(chatID uuid.UUID) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

// constEmbedder maps every text to the same unit vector, which makes all
// similarities equal and ranking order deterministic (corpus order).
type constEmbedder struct{}

func (constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeCompleter struct {
	answer  string
	usage   model.Usage
	err     error
	payload *types.ContextPayload
}

func (f *fakeCompleter) Complete(ctx context.Context, payload *types.ContextPayload) (string, model.Usage, error) {
	f.payload = payload
	if f.err != nil {
		return "", model.Usage{}, f.err
	}
	return f.answer, f.usage, nil
}

type tokenPerChar struct{}

func (tokenPerChar) Count(text string) int { return len(text) }

type testEnv struct {
	app       *fiber.App
	store     *memStore
	completer *fakeCompleter
}

func newTestEnv() *testEnv {
	st := newMemStore()
	completer := &fakeCompleter{answer: "stub answer", usage: model.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42}}

	chunker, _ := rag.NewChunker(200, 0)
	builder, _ := rag.NewContextBuilder(5, 100000, tokenPerChar{})
	retriever := rag.NewRetriever(st, constEmbedder{}, rag.NewRanker())
	ingestor := ingest.New(chunker, constEmbedder{}, st, 2)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})

	docHandler := NewDocumentHandler(st, ingestor)
	docs := app.Group("/api/v1/documents")
	docs.Post("/upload", docHandler.HandleUpload)
	docs.Post("/paste", docHandler.HandlePaste)
	docs.Get("/", docHandler.HandleList)
	docs.Get("/stats", docHandler.HandleStats)
	docs.Get("/:id", docHandler.HandleGet)
	docs.Delete("/:id", docHandler.HandleDelete)

	chatHandler := NewChatHandler(st, retriever, builder, completer, 5, 5)
	chat := app.Group("/api/v1/chat")
	chat.Post("/", chatHandler.HandleChat)
	chat.Get("/sessions", chatHandler.HandleGetSessions)
	chat.Get("/sessions/:id/history", chatHandler.HandleGetHistory)
	chat.Post("/sessions/:id/clear", chatHandler.HandleClearHistory)
	chat.Delete("/sessions/:id", chatHandler.HandleDeleteSession)

	return &testEnv{app: app, store: st, completer: completer}
}
