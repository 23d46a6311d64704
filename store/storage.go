package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"ragchat/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type DBStorer interface {
	ReplaceDocumentChunks(context.Context, types.Document, []types.Chunk) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	GetAllDocuments(context.Context) ([]types.Document, error)
	DeleteDocument(context.Context, uuid.UUID) error
	GetAllChunkVectors(context.Context) ([]types.ChunkVector, error)
	GetDocumentStats(context.Context) (*types.DocumentStats, error)

	CreateChat(context.Context) (*types.ChatSession, error)
	GetChatByID(context.Context, uuid.UUID) (*types.ChatSession, error)
	GetAllChats(context.Context) ([]types.ChatSession, error)
	DeleteChat(context.Context, uuid.UUID) error
	ClearChat(context.Context, uuid.UUID) error
	AppendMessage(context.Context, types.Message) error
	GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]types.Message, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresStore connects a pool and pins the embedding column dimension
// for table creation. dim must match the vectorizer configuration.
func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: dim}, nil
}

// ReplaceDocumentChunks upserts the document row and swaps its chunks in
// one transaction: a failed ingest rolls back completely and never leaves
// the new chunk_count next to stale or partial chunks.
func (p *PostgresStore) ReplaceDocumentChunks(ctx context.Context, doc types.Document, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO documents (id, title, source, source_path, content, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			content = EXCLUDED.content,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at
		`
	_, err = tx.Exec(ctx, query,
		doc.ID,
		doc.Title,
		doc.Source,
		doc.SourcePath,
		doc.Content,
		doc.ChunkCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", doc.ID); err != nil {
		return err
	}
	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, doc_id, position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.DocID, c.Position, c.Content, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, title, source, source_path, content, chunk_count, created_at, updated_at
		 FROM documents WHERE id = $1`, docID)

	doc := &types.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Source,
		&doc.SourcePath,
		&doc.Content,
		&doc.ChunkCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) GetAllDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, source, source_path, content, chunk_count, created_at, updated_at
		 FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(
			&doc.ID,
			&doc.Title,
			&doc.Source,
			&doc.SourcePath,
			&doc.Content,
			&doc.ChunkCount,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetAllChunkVectors returns the complete corpus snapshot joined with
// document metadata. Retrieval scans this in core: the vector column is
// storage only, similarity is computed by the ranker.
func (p *PostgresStore) GetAllChunkVectors(ctx context.Context) ([]types.ChunkVector, error) {
	query := `
		SELECT c.id, c.doc_id, c.position, c.content, c.embedding, d.title, d.source
		FROM chunks c
		JOIN documents d ON c.doc_id = d.id
		ORDER BY d.created_at, c.position
	`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshot []types.ChunkVector
	for rows.Next() {
		var cv types.ChunkVector
		var embedding pgvector.Vector
		if err := rows.Scan(
			&cv.ChunkID,
			&cv.DocID,
			&cv.Position,
			&cv.Content,
			&embedding,
			&cv.DocTitle,
			&cv.DocSource,
		); err != nil {
			return nil, err
		}
		cv.Embedding = embedding.Slice()
		snapshot = append(snapshot, cv)
	}
	return snapshot, rows.Err()
}

func (p *PostgresStore) GetDocumentStats(ctx context.Context) (*types.DocumentStats, error) {
	stats := &types.DocumentStats{}
	row := p.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(chunk_count), 0) FROM documents`)
	if err := row.Scan(&stats.TotalDocuments, &stats.TotalChunks); err != nil {
		return nil, err
	}
	if stats.TotalDocuments > 0 {
		stats.AvgChunksPerDoc = float64(stats.TotalChunks) / float64(stats.TotalDocuments)
	}
	return stats, nil
}

func (p *PostgresStore) CreateChat(ctx context.Context) (*types.ChatSession, error) {
	chat := &types.ChatSession{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chats (id, created_at, updated_at, message_count, total_tokens)
		 VALUES ($1, $2, $3, 0, 0)`,
		chat.ID, chat.CreatedAt, chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (p *PostgresStore) GetChatByID(ctx context.Context, chatID uuid.UUID) (*types.ChatSession, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, created_at, updated_at, message_count, total_tokens
		 FROM chats WHERE id = $1`, chatID)

	chat := &types.ChatSession{}
	err := row.Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt, &chat.MessageCount, &chat.TotalTokens)
	if err == pgx.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (p *PostgresStore) GetAllChats(ctx context.Context) ([]types.ChatSession, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, created_at, updated_at, message_count, total_tokens
		 FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []types.ChatSession
	for rows.Next() {
		var chat types.ChatSession
		if err := rows.Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt, &chat.MessageCount, &chat.TotalTokens); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (p *PostgresStore) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM messages WHERE chat_id = $1", chatID); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, "DELETE FROM chats WHERE id = $1", chatID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearChat deletes a session's messages and resets its counters while
// keeping the session row itself.
func (p *PostgresStore) ClearChat(ctx context.Context, chatID uuid.UUID) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE chat_id = $1", chatID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE chats SET message_count = 0, total_tokens = 0, updated_at = $2
		 WHERE id = $1`,
		chatID, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit(ctx)
}

// AppendMessage inserts the message and bumps the session counters in one
// transaction so message_count and total_tokens stay consistent.
func (p *PostgresStore) AppendMessage(ctx context.Context, msg types.Message) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.TokensUsed, msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE chats SET
			message_count = message_count + 1,
			total_tokens = total_tokens + $2,
			updated_at = $3
		 WHERE id = $1`,
		msg.ChatID, msg.TokensUsed, msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMessages returns the last `limit` messages of a chat in chronological
// order (oldest first). limit <= 0 returns the whole history.
func (p *PostgresStore) GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]types.Message, error) {
	query := `SELECT id, chat_id, role, content, tokens_used, created_at
		FROM messages WHERE chat_id = $1 ORDER BY created_at DESC`
	args := []any{chatID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.TokensUsed, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		content TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		position INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		message_count INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		chat_id UUID NOT NULL,
		role TEXT CHECK (role IN ('user','assistant')),
		content TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	`, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
