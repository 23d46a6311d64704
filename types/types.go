package types

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Document struct {
	ID         uuid.UUID // Unique document identifier
	Title      string
	Source     string // Where the text came from (file upload, paste, loader, etc.)
	SourcePath string // Path or filename of the original, if any
	Content    string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is a contiguous segment of a document's normalized text together
// with its embedding. Chunks are created once at ingest and replaced
// wholesale on re-ingest, never edited in place.
type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	Position  int
	Content   string
	Embedding []float32
}

// ChunkVector is one row of the corpus snapshot used for retrieval:
// the chunk, its embedding and the owning document's display metadata.
type ChunkVector struct {
	ChunkID   uuid.UUID
	DocID     uuid.UUID
	Position  int
	Content   string
	Embedding []float32
	DocTitle  string
	DocSource string
}

// ScoredChunk is the transient result of one retrieval call.
type ScoredChunk struct {
	ChunkID   uuid.UUID
	DocID     uuid.UUID
	Position  int
	Content   string
	Score     float64
	DocTitle  string
	DocSource string
}

type ChatSession struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	TotalTokens  int
}

type Message struct {
	ID         uuid.UUID
	ChatID     uuid.UUID
	Role       Role
	Content    string
	TokensUsed int
	CreatedAt  time.Time
}

// Turn is one prior conversation exchange as seen by the context builder.
type Turn struct {
	Role    Role
	Content string
}

type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ContextPayload is the assembled prompt for one chat turn. It is handed
// verbatim to the completion service and discarded afterwards.
type ContextPayload struct {
	Messages      []PromptMessage
	GroundingUsed int // snippets that survived the budget
	HistoryUsed   int // prior turns that survived the budget
}

type DocumentStats struct {
	TotalDocuments  int     `json:"total_documents"`
	TotalChunks     int     `json:"total_chunks"`
	AvgChunksPerDoc float64 `json:"average_chunks_per_document"`
}

type LoaderConfig struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ConverterURL   string
	CropTop        float64
	CropBottom     float64
}
