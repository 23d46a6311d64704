package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ragchat/types"

	"github.com/google/uuid"
)

// Loader watches a drop directory and turns stable files into documents
// ready for ingestion. Plain-text files are read directly; PDFs are
// validated and cropped with pdfcpu, then converted to text by the
// external converter service.
type Loader struct {
	cfg    types.LoaderConfig
	client *http.Client

	fileMutex       sync.Mutex
	filesProcessing map[string]struct{}
	fileFirstSeen   map[string]time.Time
}

type converterResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

func NewLoader(cfg types.LoaderConfig) *Loader {
	return &Loader{
		cfg:             cfg,
		client:          &http.Client{Timeout: 2 * time.Minute},
		filesProcessing: make(map[string]struct{}),
		fileFirstSeen:   make(map[string]time.Time),
	}
}

func CreateDirectories(cfg types.LoaderConfig) error {
	for _, dir := range []string{cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WatchFiles scans the source directory on every tick and sends paths of
// files that have been sitting unchanged for at least one interval, so a
// file still being copied in is never picked up half-written.
func (l *Loader) WatchFiles(ctx context.Context, fileChan chan<- string) {
	ticker := time.NewTicker(l.cfg.MonitoringTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file watcher...")
			return
		case <-ticker.C:
			l.scanOnce(ctx, fileChan)
		}
	}
}

func (l *Loader) scanOnce(ctx context.Context, fileChan chan<- string) {
	entries, err := os.ReadDir(l.cfg.SourceDir)
	if err != nil {
		fmt.Printf("Error reading source dir: %v\n", err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !supportedFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.cfg.SourceDir, entry.Name())

		l.fileMutex.Lock()
		_, busy := l.filesProcessing[path]
		firstSeen, seen := l.fileFirstSeen[path]
		if !seen {
			l.fileFirstSeen[path] = now
		}
		l.fileMutex.Unlock()

		if busy || !seen || now.Sub(firstSeen) < l.cfg.MonitoringTime {
			continue
		}

		l.fileMutex.Lock()
		l.filesProcessing[path] = struct{}{}
		l.fileMutex.Unlock()

		select {
		case fileChan <- path:
		case <-ctx.Done():
			return
		}
	}
}

// ProcessFiles converts queued files into documents until the channel
// closes or the context is cancelled. Files that cannot be converted are
// moved to the bad directory.
func (l *Loader) ProcessFiles(ctx context.Context, fileChan <-chan string, docChan chan<- *types.Document) {
	defer fmt.Println("File processor stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file processor (context cancelled)...")
			return
		case path, ok := <-fileChan:
			if !ok {
				fmt.Println("File channel closed, stopping processor...")
				return
			}

			fmt.Printf("Processing file: %s\n", path)
			doc, err := l.fetchFile(ctx, path)

			l.fileMutex.Lock()
			delete(l.filesProcessing, path)
			delete(l.fileFirstSeen, path)
			l.fileMutex.Unlock()

			if err != nil {
				fmt.Printf("Error processing file %s: %v\n", path, err)
				l.MoveToArchive(path, true)
				continue
			}

			select {
			case docChan <- doc:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Loader) fetchFile(ctx context.Context, path string) (*types.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}

	var content string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content = string(data)
	case ".pdf":
		content, err = l.extractPDFText(ctx, path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	return &types.Document{
		// Deterministic id from the path, so a re-dropped file replaces
		// its previous version instead of duplicating it.
		ID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)),
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source:     "loader",
		SourcePath: path,
		Content:    content,
		UpdatedAt:  info.ModTime(),
	}, nil
}

func (l *Loader) extractPDFText(ctx context.Context, path string) (string, error) {
	if err := ValidatePDF(path); err != nil {
		return "", err
	}

	cropped := filepath.Join(os.TempDir(), "cropped_"+filepath.Base(path))
	if err := RemoveHeaderFooterCrop(path, cropped, l.cfg.CropTop, l.cfg.CropBottom); err != nil {
		return "", err
	}
	defer os.Remove(cropped)

	return l.convertFile(ctx, cropped)
}

// convertFile posts the PDF to the converter service and returns the
// extracted markdown text.
func (l *Loader) convertFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.ConverterURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("converter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("converter returned status %d: %s", resp.StatusCode, body)
	}

	var parsed converterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse converter response: %w", err)
	}
	return parsed.Document.MdContent, nil
}

// MoveToArchive relocates a handled file; bad files go to the bad
// directory for manual inspection.
func (l *Loader) MoveToArchive(path string, bad bool) {
	targetDir := l.cfg.ArchiveDir
	if bad {
		targetDir = l.cfg.BadDir
	}
	target := filepath.Join(targetDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		fmt.Printf("Error moving %s to %s: %v\n", path, target, err)
	}
}

func supportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".pdf":
		return true
	}
	return false
}
