// Package chat implements the conversational streaming engine: the in-memory
// transcript, the persistence gateway, and the controller that folds token
// streams into assistant turns.
package chat

import (
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageState is the lifecycle of a transcript entry.
type MessageState int

const (
	// StatePending marks an assistant placeholder before the first delta.
	StatePending MessageState = iota
	// StateStreaming marks an entry that is accumulating deltas.
	StateStreaming
	// StateComplete marks a finished entry.
	StateComplete
	// StateFailed marks an assistant entry whose stream died before any
	// content arrived.
	StateFailed
)

func (s MessageState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one transcript entry. The ID is provisional (shortuuid) until
// the persistence gateway reconciles it with the backend-issued row ID.
type Message struct {
	ID             string
	Role           Role
	State          MessageState
	Content        string
	ConversationID int32 // 0 for ephemeral conversations
	ModelID        string
	CreatedTs      int64
	Persisted      bool
}

// MessagePatch is a partial update merged over a transcript entry by
// Transcript.Replace. Nil fields are left untouched.
type MessagePatch struct {
	ID        *string
	State     *MessageState
	Content   *string
	ModelID   *string
	CreatedTs *int64
	Persisted *bool
}

// NewUserMessage creates a complete user turn with a provisional ID.
func NewUserMessage(conversationID int32, content string) *Message {
	return &Message{
		ID:             shortuuid.New(),
		Role:           RoleUser,
		State:          StateComplete,
		Content:        content,
		ConversationID: conversationID,
		CreatedTs:      time.Now().UnixMilli(),
	}
}

// NewAssistantPlaceholder creates the pending assistant entry a stream
// session folds into.
func NewAssistantPlaceholder(conversationID int32, modelID string) *Message {
	return &Message{
		ID:             shortuuid.New(),
		Role:           RoleAssistant,
		State:          StatePending,
		ConversationID: conversationID,
		ModelID:        modelID,
		CreatedTs:      time.Now().UnixMilli(),
	}
}

func ptr[T any](v T) *T {
	return &v
}
