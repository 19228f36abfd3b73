// Package server provides the HTTP shell: SSE chat and synthesis endpoints,
// document and settings CRUD, and the metrics listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/ai/router"
	"github.com/anthonyhu/aidocs/chat"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
)

// defaultCreatorID is the single local user. Multi-user auth is out of
// scope; the column exists so the data model matches the hosted original.
const defaultCreatorID int32 = 1

// Server is the aidocs HTTP server.
type Server struct {
	e        *echo.Echo
	profile  *profile.Profile
	store    *store.Store
	metrics  *metrics.Exporter
	selector *router.Selector

	mu          sync.Mutex
	controllers map[int32]*chat.Controller
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(p *profile.Profile, st *store.Store, exporter *metrics.Exporter, selector *router.Selector) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		e:           e,
		profile:     p,
		store:       st,
		metrics:     exporter,
		selector:    selector,
		controllers: make(map[int32]*chat.Controller),
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	api := e.Group("/api/v1")
	api.GET("/conversations", s.handleListConversations)
	api.POST("/conversations", s.handleCreateConversation)
	api.GET("/conversations/:id/messages", s.handleListMessages)
	api.POST("/chat", s.handleChat)
	api.POST("/conversations/:id/regenerate", s.handleRegenerate)
	api.POST("/conversations/:id/generate", s.handleGenerate)
	api.GET("/documents", s.handleListDocuments)
	api.POST("/documents", s.handleSaveDocument)
	api.PATCH("/documents/:id", s.handleUpdateDocument)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings/:key", s.handlePutSetting)
	api.GET("/routers", s.handleListRouters)
	api.GET("/doc-types", s.handleListDocTypes)

	return s
}

// Start runs the listener until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server starting", "addr", addr, "mode", s.profile.Mode, "version", s.profile.Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}

// generator builds an LLM client for the current selection.
func (s *Server) generator() (llm.Service, string, error) {
	cfg := s.selector.LLMConfig(s.profile)
	if cfg.Model == "" {
		return nil, "", fmt.Errorf("no model enabled and no fallback configured")
	}
	service, err := llm.NewService(cfg)
	if err != nil {
		return nil, "", err
	}
	return service, cfg.Model, nil
}

// controller returns the controller for a conversation, creating it (and
// hydrating its transcript from the store) on first use.
func (s *Server) controller(ctx context.Context, conversationID int32, generator chat.Generator) (*chat.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctrl, ok := s.controllers[conversationID]; ok {
		return ctrl, nil
	}

	systemPrompt := ""
	generatePrompt := ""
	if conversationID != 0 {
		conversations, err := s.store.ListConversations(ctx, &store.FindConversation{ID: &conversationID})
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if len(conversations) == 0 {
			return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		systemPrompt = conversations[0].SystemPrompt
		generatePrompt = conversations[0].GeneratePrompt
	}

	transcript := chat.NewTranscript(systemPrompt, generatePrompt)
	if err := s.hydrate(ctx, transcript, conversationID); err != nil {
		return nil, err
	}

	gateway := chat.NewGateway(s.store, s.metrics, defaultCreatorID, s.profile.SaveRetryCount)
	ctrl := chat.NewController(transcript, gateway, generator, s.metrics, chat.NopNotifier{}, conversationID)
	s.controllers[conversationID] = ctrl
	return ctrl, nil
}

// hydrate loads persisted messages into a fresh transcript.
func (s *Server) hydrate(ctx context.Context, transcript *chat.Transcript, conversationID int32) error {
	if conversationID == 0 {
		creatorID := defaultCreatorID
		messages, err := s.store.ListFreeTalkMessages(ctx, &store.FindFreeTalkMessage{CreatorID: &creatorID})
		if err != nil {
			return fmt.Errorf("failed to load free talk messages: %w", err)
		}
		for _, m := range messages {
			transcript.Append(persistedEntry(m.ID, m.Role, m.Content, m.ModelID, 0, m.CreatedTs))
		}
		return nil
	}

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	for _, m := range messages {
		transcript.Append(persistedEntry(m.ID, m.Role, m.Content, m.ModelID, conversationID, m.CreatedTs))
	}
	return nil
}

func persistedEntry(id int64, role, content, modelID string, conversationID int32, createdTs int64) *chat.Message {
	return &chat.Message{
		ID:             fmt.Sprintf("%d", id),
		Role:           chat.Role(role),
		State:          chat.StateComplete,
		Content:        content,
		ConversationID: conversationID,
		ModelID:        modelID,
		CreatedTs:      createdTs,
		Persisted:      true,
	}
}
