package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/chat"
	"github.com/anthonyhu/aidocs/docgen"
	"github.com/anthonyhu/aidocs/store"
)

// dynamicGenerator builds a fresh LLM client per stream so that router or
// model changes apply to the next turn without restarting anything.
type dynamicGenerator struct {
	s *Server
}

func (g dynamicGenerator) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	service, _, err := g.s.generator()
	if err != nil {
		contentCh := make(chan string)
		statsCh := make(chan *llm.CallStats)
		errCh := make(chan error, 1)
		errCh <- err
		close(contentCh)
		close(statsCh)
		close(errCh)
		return contentCh, statsCh, errCh
	}
	return service.ChatStream(ctx, messages)
}

type chatRequest struct {
	ConversationID int32  `json:"conversation_id"`
	Content        string `json:"content"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	// Reject before the user message is appended or persisted: a turn with
	// no usable model must leave no trace.
	if _, _, err := s.generator(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "no model enabled")
	}

	ctx := c.Request().Context()
	ctrl, err := s.controller(ctx, req.ConversationID, dynamicGenerator{s})
	if err != nil {
		return err
	}

	cfg := s.selector.LLMConfig(s.profile)
	sse := newSSEWriter(c)

	result, err := ctrl.Send(ctx, req.Content, cfg.Model, chat.TurnOptions{
		OnDelta: func(delta string) {
			sse.event("delta", map[string]string{"delta": delta})
		},
	})
	if err != nil {
		if errors.Is(err, chat.ErrBusy) {
			return echo.NewHTTPError(http.StatusConflict, "a turn is already in flight")
		}
		return err
	}

	s.selector.RecordUse(ctx, cfg.Model)
	s.maybeAutoTitle(req.ConversationID, req.Content)

	if result.Notice != "" {
		sse.event("notice", map[string]string{"notice": result.Notice})
	}
	sse.event("done", map[string]any{
		"message_id": result.MessageID,
		"content":    result.Content,
		"cancelled":  result.Cancelled,
		"failed":     result.Notice != "",
	})
	return nil
}

func (s *Server) handleRegenerate(c echo.Context) error {
	conversationID, err := parseConversationID(c)
	if err != nil {
		return err
	}

	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := c.Bind(&req); err != nil || req.MessageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message_id is required")
	}
	if _, _, err := s.generator(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "no model enabled")
	}

	ctx := c.Request().Context()
	ctrl, err := s.controller(ctx, conversationID, dynamicGenerator{s})
	if err != nil {
		return err
	}

	sse := newSSEWriter(c)
	result, err := ctrl.Regenerate(ctx, req.MessageID, chat.TurnOptions{
		OnDelta: func(delta string) {
			sse.event("delta", map[string]string{"delta": delta})
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrBusy):
			return echo.NewHTTPError(http.StatusConflict, "a turn is already in flight")
		case errors.Is(err, chat.ErrNotRegenerable):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "message cannot be regenerated")
		default:
			return err
		}
	}

	if result.Notice != "" {
		sse.event("notice", map[string]string{"notice": result.Notice})
	}
	sse.event("done", map[string]any{
		"message_id": result.MessageID,
		"content":    result.Content,
		"failed":     result.Notice != "",
	})
	return nil
}

func (s *Server) handleListConversations(c echo.Context) error {
	creatorID := defaultCreatorID
	conversations, err := s.store.ListConversations(c.Request().Context(), &store.FindConversation{CreatorID: &creatorID})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conversations)
}

type createConversationRequest struct {
	Title       string `json:"title"`
	DocTypeName string `json:"doc_type_name"`
}

func (s *Server) handleCreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	title := req.Title
	titleSource := store.TitleSourceUser
	if title == "" {
		title = "New Chat"
		titleSource = store.TitleSourceDefault
	}

	systemPrompt := ""
	generatePrompt := ""
	if req.DocTypeName != "" {
		docType, ok := docgen.GetDocType(req.DocTypeName)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown doc type")
		}
		// A templated conversation copies both prompts.
		systemPrompt = docType.ChatPrompt
		generatePrompt = docType.GeneratePrompt
		if req.Title == "" {
			title = docType.Title
		}
	}

	now := time.Now().UnixMilli()
	conversation, err := s.store.CreateConversation(c.Request().Context(), &store.Conversation{
		UID:            shortuuid.New(),
		Title:          title,
		TitleSource:    titleSource,
		SystemPrompt:   systemPrompt,
		GeneratePrompt: generatePrompt,
		DocTypeName:    req.DocTypeName,
		CreatorID:      defaultCreatorID,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conversation)
}

func (s *Server) handleListMessages(c echo.Context) error {
	conversationID, err := parseConversationID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if conversationID == 0 {
		creatorID := defaultCreatorID
		messages, err := s.store.ListFreeTalkMessages(ctx, &store.FindFreeTalkMessage{CreatorID: &creatorID})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, messages)
	}

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

// maybeAutoTitle derives a short conversation title from the first user
// message. Runs in the background; only conversations still carrying the
// default title are touched.
func (s *Server) maybeAutoTitle(conversationID int32, firstMessage string) {
	if conversationID == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		conversations, err := s.store.ListConversations(ctx, &store.FindConversation{ID: &conversationID})
		if err != nil || len(conversations) == 0 {
			return
		}
		if conversations[0].TitleSource != store.TitleSourceDefault {
			return
		}

		service, _, err := s.generator()
		if err != nil {
			return
		}

		title, _, err := service.Chat(ctx, []llm.Message{
			llm.SystemPrompt("Produce a concise title (max 8 words) for a conversation that starts with the given message. Reply with the title only."),
			llm.UserMessage(firstMessage),
		})
		if err != nil {
			slog.Debug("auto-title generation failed", "conversation_id", conversationID, "error", err)
			return
		}

		title = strings.Trim(strings.TrimSpace(title), `"`)
		if title == "" {
			return
		}

		source := store.TitleSourceAuto
		if _, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
			ID:          conversationID,
			Title:       &title,
			TitleSource: &source,
		}); err != nil {
			slog.Warn("auto-title update failed", "conversation_id", conversationID, "error", err)
		}
	}()
}

func parseConversationID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return int32(id), nil
}

// sseWriter streams server-sent events over an echo response.
type sseWriter struct {
	c echo.Context
}

func newSSEWriter(c echo.Context) *sseWriter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	return &sseWriter{c: c}
}

func (w *sseWriter) event(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w.c.Response(), "event: %s\ndata: %s\n\n", name, data)
	w.c.Response().Flush()
}
