package api

import (
	"context"
	"time"

	"ragchat/model"
	"ragchat/rag"
	"ragchat/store"
	"ragchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ChatHandler struct {
	store     store.DBStorer
	retriever *rag.Retriever
	builder   *rag.ContextBuilder
	completer model.Completer
	topK      int
	window    int
}

func NewChatHandler(storer store.DBStorer, retriever *rag.Retriever, builder *rag.ContextBuilder, completer model.Completer, topK, historyWindow int) *ChatHandler {
	return &ChatHandler{
		store:     storer,
		retriever: retriever,
		builder:   builder,
		completer: completer,
		topK:      topK,
		window:    historyWindow,
	}
}

// HandleChat runs one RAG turn: resolve the session, persist the user
// message, retrieve grounding chunks, assemble the prompt, complete, and
// persist the answer with its token usage. The session is resolved before
// anything is written, so a failed session lookup or creation aborts the
// turn without persisting under an unbound id.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ctx := context.Background()

	chat, err := h.resolveChat(ctx, params.ChatID)
	if err != nil {
		return err
	}

	history, err := h.store.GetMessages(ctx, chat.ID, h.window)
	if err != nil {
		return err
	}

	if err := h.appendMessage(ctx, chat.ID, types.RoleUser, params.Message, 0); err != nil {
		return err
	}

	scored, err := h.retriever.Retrieve(ctx, params.Message, h.topK)
	if err != nil {
		return err
	}

	payload := h.builder.Build(params.Message, scored, toTurns(history))

	answer, usage, err := h.completer.Complete(ctx, payload)
	if err != nil {
		return err
	}

	if err := h.appendMessage(ctx, chat.ID, types.RoleAssistant, answer, usage.TotalTokens); err != nil {
		return err
	}

	return c.JSON(&types.ChatResponse{
		Answer:     answer,
		ChatID:     chat.ID.String(),
		Sources:    toSources(scored),
		TokensUsed: usage.TotalTokens,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *ChatHandler) HandleGetSessions(c *fiber.Ctx) error {
	chats, err := h.store.GetAllChats(context.Background())
	if err != nil {
		return err
	}

	sessions := make([]types.SessionResponse, len(chats))
	for i, chat := range chats {
		sessions[i] = types.SessionResponse{
			ID:           chat.ID.String(),
			CreatedAt:    chat.CreatedAt,
			UpdatedAt:    chat.UpdatedAt,
			MessageCount: chat.MessageCount,
			TotalTokens:  chat.TotalTokens,
		}
	}
	return c.JSON(fiber.Map{"sessions": sessions, "total": len(sessions)})
}

func (h *ChatHandler) HandleGetHistory(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	limit := c.QueryInt("limit", 20)

	ctx := context.Background()
	if _, err := h.store.GetChatByID(ctx, chatID); err != nil {
		return err
	}

	messages, err := h.store.GetMessages(ctx, chatID, limit)
	if err != nil {
		return err
	}

	out := make([]types.MessageResponse, len(messages))
	for i, msg := range messages {
		out[i] = types.MessageResponse{
			ID:         msg.ID.String(),
			Role:       msg.Role,
			Content:    msg.Content,
			TokensUsed: msg.TokensUsed,
			CreatedAt:  msg.CreatedAt,
		}
	}
	return c.JSON(fiber.Map{"chat_id": chatID.String(), "messages": out, "total": len(out)})
}

// HandleClearHistory wipes a session's messages and resets its counters,
// keeping the session itself so the caller can continue chatting under the
// same id with a fresh history.
func (h *ChatHandler) HandleClearHistory(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.store.ClearChat(context.Background(), chatID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "cleared"})
}

func (h *ChatHandler) HandleDeleteSession(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.store.DeleteChat(context.Background(), chatID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "deleted"})
}

func (h *ChatHandler) resolveChat(ctx context.Context, chatID string) (*types.ChatSession, error) {
	if chatID == "" {
		return h.store.CreateChat(ctx)
	}
	id, err := uuid.Parse(chatID)
	if err != nil {
		return nil, ErrInvalidID()
	}
	return h.store.GetChatByID(ctx, id)
}

func (h *ChatHandler) appendMessage(ctx context.Context, chatID uuid.UUID, role types.Role, content string, tokens int) error {
	return h.store.AppendMessage(ctx, types.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		Role:       role,
		Content:    content,
		TokensUsed: tokens,
		CreatedAt:  time.Now().UTC(),
	})
}

func toTurns(messages []types.Message) []types.Turn {
	turns := make([]types.Turn, len(messages))
	for i, msg := range messages {
		turns[i] = types.Turn{Role: msg.Role, Content: msg.Content}
	}
	return turns
}

func toSources(scored []types.ScoredChunk) []types.Source {
	sources := make([]types.Source, len(scored))
	for i, ch := range scored {
		sources[i] = types.Source{
			DocID:      ch.DocID.String(),
			Title:      ch.DocTitle,
			ChunkText:  ch.Content,
			Position:   ch.Position,
			Similarity: ch.Score,
		}
	}
	return sources
}
