package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/chat"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/store"
)

// Generator produces a streamed completion. Satisfied by llm.Service.
type Generator interface {
	ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error)
}

// Draft is synthesized document content. It never touches the transcript
// and is not persisted until an explicit save.
type Draft struct {
	Content              string
	SourceConversationID int32
	GeneratePrompt       string
	DocTypeName          string
}

// Pipeline runs document synthesis over a transcript snapshot. It streams
// through its own generation session, fully independent of any chat turn in
// flight.
type Pipeline struct {
	store     *store.Store
	metrics   *metrics.Exporter
	generator Generator
	creatorID int32
}

// NewPipeline creates a document synthesis pipeline.
func NewPipeline(st *store.Store, exporter *metrics.Exporter, generator Generator, creatorID int32) *Pipeline {
	return &Pipeline{
		store:     st,
		metrics:   exporter,
		generator: generator,
		creatorID: creatorID,
	}
}

// Synthesize generates a draft from the snapshot. The whole dialogue is
// flattened into ONE synthetic user turn of "role: content" lines (system
// entries excluded), with the generate prompt as the system message. onDelta
// is invoked per delta; a stream failure returns the partial draft alongside
// the error.
func (p *Pipeline) Synthesize(ctx context.Context, snapshot []chat.Message, generatePrompt string, conversationID int32, onDelta func(delta string)) (*Draft, error) {
	messages := []llm.Message{
		llm.SystemPrompt(generatePrompt),
		llm.UserMessage(FlattenDialogue(snapshot)),
	}

	draft := &Draft{
		SourceConversationID: conversationID,
		GeneratePrompt:       generatePrompt,
	}

	start := time.Now()
	contentCh, _, errCh := p.generator.ChatStream(ctx, messages)

	var buffer strings.Builder
	for delta := range contentCh {
		buffer.WriteString(delta)
		p.metrics.RecordDelta("docgen")
		if onDelta != nil {
			onDelta(delta)
		}
	}
	draft.Content = buffer.String()
	p.metrics.RecordStreamDuration("docgen", time.Since(start).Seconds())

	if err := <-errCh; err != nil {
		p.metrics.RecordStreamError("docgen")
		slog.Warn("docgen: synthesis stream failed",
			"conversation_id", conversationID,
			"partial_length", len(draft.Content),
			"error", err,
		)
		return draft, fmt.Errorf("synthesis failed: %w", err)
	}

	return draft, nil
}

// FlattenDialogue renders the non-system entries as "role: content" lines.
func FlattenDialogue(snapshot []chat.Message) string {
	lines := make([]string, 0, len(snapshot))
	for _, entry := range snapshot {
		if entry.Role == chat.RoleSystem || entry.Content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, entry.Content))
	}
	return strings.Join(lines, "\n")
}

// SaveDraft persists the draft as a new document. An empty title is derived
// from the first content line, stripped of markdown decoration.
func (p *Pipeline) SaveDraft(ctx context.Context, draft *Draft, title string) (*store.Document, error) {
	if draft.Content == "" {
		return nil, fmt.Errorf("draft is empty")
	}
	if title == "" {
		title = DeriveTitle(draft.Content)
	}

	now := time.Now().UnixMilli()
	doc, err := p.store.CreateDocument(ctx, &store.CreateDocument{
		UID:            shortuuid.New(),
		Title:          title,
		Content:        draft.Content,
		GeneratePrompt: draft.GeneratePrompt,
		DocTypeName:    draft.DocTypeName,
		ConversationID: draft.SourceConversationID,
		CreatorID:      p.creatorID,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	slog.Info("docgen: draft saved",
		"document_id", doc.ID,
		"title", title,
		"conversation_id", draft.SourceConversationID,
	)
	return doc, nil
}

// UpdateDocument overwrites an existing document's content.
func (p *Pipeline) UpdateDocument(ctx context.Context, id int64, content string) (*store.Document, error) {
	now := time.Now().UnixMilli()
	doc, err := p.store.UpdateDocument(ctx, &store.UpdateDocument{
		ID:        id,
		Content:   &content,
		UpdatedTs: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}
