package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"ragchat/app/api"
	"ragchat/ingest"
	"ragchat/model"
	"ragchat/rag"
	"ragchat/store"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	var (
		dim       = envInt("EMBEDDING_DIM", 768)
		chunkSize = envInt("CHUNK_SIZE", 1000)
		overlap   = envInt("CHUNK_OVERLAP", 200)
		topK      = envInt("TOP_K", 5)
		window    = envInt("HISTORY_WINDOW", 5)
		budget    = envInt("CONTEXT_BUDGET", 4000)
	)

	pool, err := store.NewPostgresStore(ctx, postgresConnStr(), dim)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
	}

	// Invalid chunk sizing is fatal here, never clamped at runtime.
	chunker, err := rag.NewChunker(chunkSize, overlap)
	if err != nil {
		log.Fatal(err)
	}
	counter, err := rag.NewTiktokenCounter()
	if err != nil {
		log.Fatal(err)
	}
	builder, err := rag.NewContextBuilder(window, budget, counter)
	if err != nil {
		log.Fatal(err)
	}

	embedder := model.NewEmbeddingClient(
		os.Getenv("EMBEDDING_URL"),
		os.Getenv("EMBEDDING_MODEL"),
		os.Getenv("EMBEDDING_API_KEY"),
		dim,
	)
	completer := model.NewCompletionClient(
		os.Getenv("LLM_URL"),
		os.Getenv("LLM_MODEL"),
		os.Getenv("LLM_API_KEY"),
	)
	retriever := rag.NewRetriever(pool, embedder, rag.NewRanker())
	ingestor := ingest.New(chunker, embedder, pool, dim)

	var (
		app             = fiber.New(config)
		checkHandler    = api.NewCheckHandler()
		chatHandler     = api.NewChatHandler(pool, retriever, builder, completer, topK, window)
		documentHandler = api.NewDocumentHandler(pool, ingestor)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
		documents       = apiv1.Group("/documents")
		chat            = apiv1.Group("/chat")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	documents.Post("/upload", documentHandler.HandleUpload)
	documents.Post("/paste", documentHandler.HandlePaste)
	documents.Get("/", documentHandler.HandleList)
	documents.Get("/stats", documentHandler.HandleStats)
	documents.Get("/:id", documentHandler.HandleGet)
	documents.Delete("/:id", documentHandler.HandleDelete)

	chat.Post("/", chatHandler.HandleChat)
	chat.Get("/sessions", chatHandler.HandleGetSessions)
	chat.Get("/sessions/:id/history", chatHandler.HandleGetHistory)
	chat.Post("/sessions/:id/clear", chatHandler.HandleClearHistory)
	chat.Delete("/sessions/:id", chatHandler.HandleDeleteSession)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
	}
}

func postgresConnStr() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
