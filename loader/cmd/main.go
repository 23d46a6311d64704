package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"ragchat/ingest"
	"ragchat/loader/internal"
	"ragchat/loader/service"
	"ragchat/model"
	"ragchat/rag"
	"ragchat/store"
	"ragchat/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx := context.Background()

	cfg := loaderConfig()
	if err := internal.CreateDirectories(cfg); err != nil {
		log.Fatal(err)
	}

	dim := envInt("EMBEDDING_DIM", 768)
	pool, err := store.NewPostgresStore(ctx, postgresConnStr(), dim)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
	}

	chunker, err := rag.NewChunker(envInt("CHUNK_SIZE", 1000), envInt("CHUNK_OVERLAP", 200))
	if err != nil {
		log.Fatal(err)
	}
	embedder := model.NewEmbeddingClient(
		os.Getenv("EMBEDDING_URL"),
		os.Getenv("EMBEDDING_MODEL"),
		os.Getenv("EMBEDDING_API_KEY"),
		dim,
	)
	ingestor := ingest.New(chunker, embedder, pool, dim)

	service.New(pool, ingestor, cfg).Run()

	log.Println("Closing database connection pool...")
	if err := pool.Close(); err != nil {
		log.Printf("error closing pool: %v\n", err)
	}
}

func loaderConfig() types.LoaderConfig {
	monitoring := time.Duration(envInt("MONITORING_TIME_SEC", 10)) * time.Second
	return types.LoaderConfig{
		MonitoringTime: monitoring,
		SourceDir:      envString("LOADER_SOURCE_DIR", "source"),
		ArchiveDir:     envString("LOADER_ARCHIVE_DIR", "archive"),
		BadDir:         envString("LOADER_BAD_DIR", "bad"),
		ConverterURL:   os.Getenv("CONVERTER_URL"),
		CropTop:        envFloat("PDF_CROP_TOP", 50),
		CropBottom:     envFloat("PDF_CROP_BOTTOM", 40),
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
}
