package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ragchat/ingest"
	"ragchat/loader/internal"
	"ragchat/store"
	"ragchat/types"
)

type Service struct {
	logger   *slog.Logger
	store    store.DBStorer
	ingestor *ingest.Service
	loader   *internal.Loader
}

func New(storer store.DBStorer, ingestor *ingest.Service, cfg types.LoaderConfig) *Service {
	return &Service{
		logger:   slog.Default(),
		store:    storer,
		ingestor: ingestor,
		loader:   internal.NewLoader(cfg),
	}
}

func (s *Service) Stop() {
	s.logger.Info("Loader service stopped")
}

// Run wires the watch -> process -> ingest pipeline and blocks until a
// shutdown signal arrives, then drains the goroutines with a timeout.
func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	docChan := make(chan *types.Document)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.loader.WatchFiles(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.loader.ProcessFiles(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.saveDocuments(ctx, docChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)
	close(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}

	s.Stop()
}

func (s *Service) saveDocuments(ctx context.Context, docChan <-chan *types.Document) {
	for doc := range docChan {
		if !s.shouldUpdate(ctx, doc) {
			fmt.Printf("Document %s is up to date, archiving\n", doc.Title)
			s.loader.MoveToArchive(doc.SourcePath, false)
			continue
		}

		if _, err := s.ingestor.IngestDocument(ctx, *doc); err != nil {
			fmt.Printf("Error ingesting %s: %v\n", doc.SourcePath, err)
			s.loader.MoveToArchive(doc.SourcePath, true)
			continue
		}

		fmt.Printf("Successfully ingested document %s\n", doc.Title)
		s.loader.MoveToArchive(doc.SourcePath, false)
	}
}

// shouldUpdate reports whether the file is new or modified since its last
// ingest.
func (s *Service) shouldUpdate(ctx context.Context, doc *types.Document) bool {
	stored, err := s.store.GetDocumentByID(ctx, doc.ID)
	if err != nil {
		return true
	}
	return doc.UpdatedAt.After(stored.UpdatedAt)
}
