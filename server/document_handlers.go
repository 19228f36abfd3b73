package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anthonyhu/aidocs/docgen"
	"github.com/anthonyhu/aidocs/store"
)

func (s *Server) handleGenerate(c echo.Context) error {
	conversationID, err := parseConversationID(c)
	if err != nil {
		return err
	}
	if _, _, err := s.generator(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "no model enabled")
	}

	ctx := c.Request().Context()
	ctrl, err := s.controller(ctx, conversationID, dynamicGenerator{s})
	if err != nil {
		return err
	}

	generatePrompt := ctrl.Transcript().GeneratePrompt()
	if generatePrompt == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "conversation has no generate prompt")
	}

	// Synthesis runs on its own stream; a chat turn in flight is unaffected
	// and the transcript is read through an immutable snapshot.
	snapshot := ctrl.Transcript().Snapshot()
	pipeline := docgen.NewPipeline(s.store, s.metrics, dynamicGenerator{s}, defaultCreatorID)

	sse := newSSEWriter(c)
	draft, err := pipeline.Synthesize(ctx, snapshot, generatePrompt, conversationID, func(delta string) {
		sse.event("delta", map[string]string{"delta": delta})
	})
	if err != nil {
		sse.event("error", map[string]string{"error": "synthesis failed"})
		return nil
	}

	sse.event("done", map[string]any{
		"content":         draft.Content,
		"generate_prompt": draft.GeneratePrompt,
	})
	return nil
}

type saveDocumentRequest struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	GeneratePrompt string `json:"generate_prompt"`
	DocTypeName    string `json:"doc_type_name"`
	ConversationID int32  `json:"conversation_id"`
}

func (s *Server) handleSaveDocument(c echo.Context) error {
	var req saveDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	pipeline := docgen.NewPipeline(s.store, s.metrics, dynamicGenerator{s}, defaultCreatorID)
	doc, err := pipeline.SaveDraft(c.Request().Context(), &docgen.Draft{
		Content:              req.Content,
		SourceConversationID: req.ConversationID,
		GeneratePrompt:       req.GeneratePrompt,
		DocTypeName:          req.DocTypeName,
	}, req.Title)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleUpdateDocument(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	pipeline := docgen.NewPipeline(s.store, s.metrics, dynamicGenerator{s}, defaultCreatorID)
	doc, err := pipeline.UpdateDocument(c.Request().Context(), id, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	creatorID := defaultCreatorID
	find := &store.FindDocument{CreatorID: &creatorID}
	if param := c.QueryParam("conversation_id"); param != "" {
		id, err := strconv.ParseInt(param, 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
		}
		conversationID := int32(id)
		find.ConversationID = &conversationID
	}

	documents, err := s.store.ListDocuments(c.Request().Context(), find)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, documents)
}

func (s *Server) handleListDocTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, docgen.DocTypes())
}
