package api

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"ragchat/ingest"
	"ragchat/store"
	"ragchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	store    store.DBStorer
	ingestor *ingest.Service
}

func NewDocumentHandler(storer store.DBStorer, ingestor *ingest.Service) *DocumentHandler {
	return &DocumentHandler{
		store:    storer,
		ingestor: ingestor,
	}
}

// HandleUpload ingests an uploaded plain-text file. PDFs and other
// binary formats go through the loader, which preprocesses them first.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".txt") {
		return NewError(fiber.StatusBadRequest, "only .txt files are supported")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	title := c.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	}

	doc, err := h.ingestor.IngestDocument(context.Background(), types.Document{
		Title:      title,
		Source:     "file upload",
		SourcePath: fileHeader.Filename,
		Content:    string(data),
	})
	if err != nil {
		return mapIngestError(err)
	}
	return c.JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) HandlePaste(c *fiber.Ctx) error {
	var params types.PasteParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	doc, err := h.ingestor.IngestDocument(context.Background(), types.Document{
		Title:   params.Title,
		Source:  "text paste",
		Content: strings.TrimSpace(params.Content),
	})
	if err != nil {
		return mapIngestError(err)
	}
	return c.JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.GetAllDocuments(context.Background())
	if err != nil {
		return err
	}

	out := make([]types.DocumentResponse, len(docs))
	for i := range docs {
		out[i] = *toDocumentResponse(&docs[i])
	}
	return c.JSON(&types.DocumentList{Documents: out, Total: len(out)})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	doc, err := h.store.GetDocumentByID(context.Background(), docID)
	if err != nil {
		return err
	}
	return c.JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.store.DeleteDocument(context.Background(), docID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "deleted"})
}

func (h *DocumentHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.store.GetDocumentStats(context.Background())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func mapIngestError(err error) error {
	if errors.Is(err, ingest.ErrNoIndexableText) {
		return NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func toDocumentResponse(doc *types.Document) *types.DocumentResponse {
	return &types.DocumentResponse{
		ID:         doc.ID.String(),
		Title:      doc.Title,
		Source:     doc.Source,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
