package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/store"
)

var (
	// ErrBusy is returned when a send overlaps an in-flight turn.
	ErrBusy = errors.New("a turn is already in flight")
	// ErrNotRegenerable is returned when the regeneration target is not the
	// latest assistant turn.
	ErrNotRegenerable = errors.New("message cannot be regenerated")
)

// State is the controller's position in the turn lifecycle.
type State int32

const (
	StateIdle State = iota
	StateUserTurnPending
	StateAssistantTurnStreaming
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserTurnPending:
		return "user_turn_pending"
	case StateAssistantTurnStreaming:
		return "assistant_turn_streaming"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Generator produces a streamed completion. Satisfied by llm.Service.
type Generator interface {
	ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error)
}

// Notifier receives recoverable failure notices meant for the user. The
// transcript itself is never the error surface.
type Notifier interface {
	Notify(conversationID int32, notice string)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Notify(int32, string) {}

// StreamSession is one in-flight generation folding into a single
// placeholder entry.
type StreamSession struct {
	TargetID string
	ModelID  string

	buffer    strings.Builder
	draftUID  string // idempotency key for every persist of this turn
	draftID   int64  // backend row id once a draft insert landed
	draftWG   sync.WaitGroup
	cancelled atomic.Bool
}

func newStreamSession(targetID, modelID string) *StreamSession {
	return &StreamSession{
		TargetID: targetID,
		ModelID:  modelID,
		draftUID: uuid.NewString(),
	}
}

// Cancel requests cooperative cancellation. The fold loop checks the flag
// before every transcript write, so a cancelled session stops mutating even
// if deltas are still arriving.
func (s *StreamSession) Cancel() {
	s.cancelled.Store(true)
}

func (s *StreamSession) Cancelled() bool {
	return s.cancelled.Load()
}

// TurnResult reports a finished assistant turn. A non-empty Notice is the
// user-visible failure notification; the content is still whatever partial
// text survived.
type TurnResult struct {
	MessageID string
	Content   string
	Stats     *llm.CallStats
	Cancelled bool
	Notice    string
}

// TurnOptions customizes one Send/Regenerate call.
type TurnOptions struct {
	// OnDelta is invoked for every delta after it has been folded into the
	// transcript. Used by the SSE shell to forward tokens.
	OnDelta func(delta string)
}

// Controller drives the per-turn state machine of one conversation. A busy
// flag rejects overlapping sends; everything else is serialized through the
// transcript mutex.
type Controller struct {
	transcript *Transcript
	gateway    *Gateway
	generator  Generator
	metrics    *metrics.Exporter
	notifier   Notifier

	conversationID int32
	busy           atomic.Bool
	state          atomic.Int32

	mu      sync.Mutex
	session *StreamSession
}

// NewController creates a controller for one conversation. conversationID 0
// means the ephemeral free-talk conversation.
func NewController(transcript *Transcript, gateway *Gateway, generator Generator, exporter *metrics.Exporter, notifier Notifier, conversationID int32) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		transcript:     transcript,
		gateway:        gateway,
		generator:      generator,
		metrics:        exporter,
		notifier:       notifier,
		conversationID: conversationID,
	}
}

// Transcript returns the controller's transcript.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// CancelActive cancels the in-flight stream session, if any.
func (c *Controller) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Cancel()
	}
}

func (c *Controller) setSession(s *StreamSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Send runs one full user turn: append the user entry, persist it in the
// background, stream the assistant reply into a placeholder, then persist
// the final content. Returns ErrBusy if a turn is already in flight.
func (c *Controller) Send(ctx context.Context, content string, modelID string, opts TurnOptions) (*TurnResult, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer func() {
		c.setSession(nil)
		c.setState(StateIdle)
		c.busy.Store(false)
	}()

	c.setState(StateUserTurnPending)

	userMsg := NewUserMessage(c.conversationID, content)
	c.transcript.Append(userMsg)
	c.persistAsync(ctx, userMsg, uuid.NewString())

	history := c.requestMessages()

	placeholder := NewAssistantPlaceholder(c.conversationID, modelID)
	c.transcript.Append(placeholder)

	session := newStreamSession(placeholder.ID, modelID)
	c.setSession(session)

	return c.runStream(ctx, session, history, opts)
}

// requestMessages maps the transcript into the request message list:
// system prompt first, then every complete non-system turn in order.
func (c *Controller) requestMessages() []llm.Message {
	snapshot := c.transcript.Snapshot()
	messages := make([]llm.Message, 0, len(snapshot)+1)
	if prompt := c.transcript.SystemPrompt(); prompt != "" {
		messages = append(messages, llm.SystemPrompt(prompt))
	}
	for _, entry := range snapshot {
		if entry.Role == RoleSystem || entry.State != StateComplete || entry.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: string(entry.Role), Content: entry.Content})
	}
	return messages
}

// runStream folds a generation stream into the session's target entry and
// persists the outcome.
func (c *Controller) runStream(ctx context.Context, session *StreamSession, messages []llm.Message, opts TurnOptions) (*TurnResult, error) {
	c.setState(StateAssistantTurnStreaming)
	start := time.Now()

	contentCh, statsCh, errCh := c.generator.ChatStream(ctx, messages)

	for delta := range contentCh {
		if session.Cancelled() {
			break
		}
		session.buffer.WriteString(delta)
		c.metrics.RecordDelta("chat")

		content := session.buffer.String()
		c.transcript.Replace(session.TargetID, MessagePatch{
			Content: &content,
			State:   ptr(StateStreaming),
		})
		if opts.OnDelta != nil {
			opts.OnDelta(delta)
		}

		if c.gateway.AllowDraftSave() {
			c.persistDraft(ctx, session, content)
		}
	}

	c.metrics.RecordStreamDuration("chat", time.Since(start).Seconds())

	if session.Cancelled() {
		// Drain in the background so the reader goroutine can close its
		// channels; the cancelled session no longer touches the transcript.
		go func() {
			for range contentCh {
			}
			<-errCh
		}()
		content := session.buffer.String()
		c.transcript.Replace(session.TargetID, MessagePatch{
			Content: &content,
			State:   ptr(StateComplete),
		})
		rowID := c.finishPersist(ctx, session, content)
		return &TurnResult{MessageID: turnMessageID(session, rowID), Content: content, Cancelled: true}, nil
	}

	if err := <-errCh; err != nil {
		c.metrics.RecordStreamError("chat")
		return c.failTurn(ctx, session, err), nil
	}

	stats := <-statsCh
	content := session.buffer.String()
	c.transcript.Replace(session.TargetID, MessagePatch{
		Content: &content,
		State:   ptr(StateComplete),
	})

	c.setState(StatePersisting)
	rowID := c.finishPersist(ctx, session, content)

	return &TurnResult{MessageID: turnMessageID(session, rowID), Content: content, Stats: stats}, nil
}

// failTurn handles a terminal stream failure. Partial content is kept;
// StateFailed is set only when nothing arrived at all.
func (c *Controller) failTurn(ctx context.Context, session *StreamSession, err error) *TurnResult {
	content := session.buffer.String()
	slog.Warn("controller: stream failed",
		"conversation_id", c.conversationID,
		"message_id", session.TargetID,
		"partial_length", len(content),
		"error", err,
	)

	rowID := int64(0)
	if content == "" {
		c.transcript.Replace(session.TargetID, MessagePatch{State: ptr(StateFailed)})
	} else {
		c.transcript.Replace(session.TargetID, MessagePatch{
			Content: &content,
			State:   ptr(StateComplete),
		})
		rowID = c.finishPersist(ctx, session, content)
	}

	notice := "generation failed, please retry"
	c.notifier.Notify(c.conversationID, notice)
	return &TurnResult{MessageID: turnMessageID(session, rowID), Content: content, Notice: notice}
}

// turnMessageID is the ID the caller should address the turn by: the
// backend row ID once persisted, the provisional one otherwise.
func turnMessageID(session *StreamSession, rowID int64) string {
	if rowID != 0 {
		return strconv.FormatInt(rowID, 10)
	}
	return session.TargetID
}

// finishPersist writes the final assistant content and returns the backend
// row ID, or 0 when nothing was persisted. A draft row that already landed
// is updated in place; otherwise a full retrying save runs under the
// session's idempotency key, so a racing draft insert cannot duplicate the
// row.
func (c *Controller) finishPersist(ctx context.Context, session *StreamSession, content string) int64 {
	if content == "" {
		return 0
	}

	// In-flight draft writes must land before the final one so they cannot
	// clobber it.
	session.draftWG.Wait()

	snapshot := c.transcript.Snapshot()
	var msg *Message
	for i := range snapshot {
		if snapshot[i].ID == session.TargetID {
			msg = &snapshot[i]
			break
		}
	}
	if msg == nil {
		return 0
	}

	if rowID := c.persistedRowID(session, msg); rowID != 0 {
		c.gateway.Update(ctx, rowID, &store.UpdateMessage{Content: &content})
		c.reconcile(session.TargetID, rowID)
		return rowID
	}

	result := c.gateway.Save(ctx, msg, session.draftUID)
	if !result.OK {
		c.notifier.Notify(c.conversationID, "reply could not be saved")
		return 0
	}
	c.reconcile(session.TargetID, result.ID)
	return result.ID
}

// persistDraft writes the partial content mid-stream, best-effort. The
// first write inserts synchronously so later writes have a row to update;
// every later write runs async off the fold loop.
func (c *Controller) persistDraft(ctx context.Context, session *StreamSession, content string) {
	if session.draftID != 0 {
		draft := content
		session.draftWG.Add(1)
		go func() {
			defer session.draftWG.Done()
			c.gateway.Update(ctx, session.draftID, &store.UpdateMessage{Content: &draft})
		}()
		return
	}

	msg := &Message{
		Role:           RoleAssistant,
		Content:        content,
		ConversationID: c.conversationID,
		ModelID:        session.ModelID,
		CreatedTs:      time.Now().UnixMilli(),
	}
	if id, err := c.gateway.insert(ctx, msg, session.draftUID); err == nil {
		session.draftID = id
	}
}

// persistedRowID returns the backend row id of the session target, either
// from an earlier draft insert or from a prior reconciliation.
func (c *Controller) persistedRowID(session *StreamSession, msg *Message) int64 {
	if session.draftID != 0 {
		return session.draftID
	}
	if msg.Persisted {
		if id, err := strconv.ParseInt(msg.ID, 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// persistAsync saves in the background and reconciles the provisional ID on
// success. Failures are absorbed by the gateway.
func (c *Controller) persistAsync(ctx context.Context, msg *Message, uid string) {
	copied := *msg
	go func() {
		result := c.gateway.Save(ctx, &copied, uid)
		if result.OK {
			c.reconcile(copied.ID, result.ID)
		}
	}()
}

// reconcile replaces a provisional transcript ID with the backend-issued
// one. A stale provisional ID (entry already reconciled) only logs.
func (c *Controller) reconcile(provisionalID string, backendID int64) {
	id := strconv.FormatInt(backendID, 10)
	c.transcript.Replace(provisionalID, MessagePatch{
		ID:        &id,
		Persisted: ptr(true),
	})
}
