package chat

import (
	"log/slog"
	"sync"

	"github.com/lithammer/shortuuid/v4"
)

// Transcript is the ordered in-memory conversation state. All mutation goes
// through Append and Replace; both are serialized by one mutex, so a
// completed Replace is fully applied before the next one starts.
type Transcript struct {
	mu             sync.Mutex
	entries        []*Message
	systemPrompt   string
	generatePrompt string
}

// NewTranscript creates an empty transcript with the conversation prompts.
func NewTranscript(systemPrompt, generatePrompt string) *Transcript {
	return &Transcript{
		systemPrompt:   systemPrompt,
		generatePrompt: generatePrompt,
	}
}

func (t *Transcript) SystemPrompt() string {
	return t.systemPrompt
}

func (t *Transcript) GeneratePrompt() string {
	return t.generatePrompt
}

// SetGeneratePrompt replaces the synthesis prompt, e.g. after the user edits
// it in the conversation settings.
func (t *Transcript) SetGeneratePrompt(prompt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generatePrompt = prompt
}

// Append inserts a message at the end. A missing ID gets a provisional
// shortuuid. Returns the stored entry.
func (t *Transcript) Append(m *Message) *Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ID == "" {
		m.ID = shortuuid.New()
	}
	t.entries = append(t.entries, m)
	return m
}

// Replace merges the patch over the entry with the given ID. Position and
// transcript length are preserved. An unknown ID is a warning, not an error;
// the stale write is dropped.
func (t *Transcript) Replace(id string, patch MessagePatch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.entries {
		if entry.ID != id {
			continue
		}
		if patch.ID != nil {
			entry.ID = *patch.ID
		}
		if patch.State != nil {
			entry.State = *patch.State
		}
		if patch.Content != nil {
			entry.Content = *patch.Content
		}
		if patch.ModelID != nil {
			entry.ModelID = *patch.ModelID
		}
		if patch.CreatedTs != nil {
			entry.CreatedTs = *patch.CreatedTs
		}
		if patch.Persisted != nil {
			entry.Persisted = *patch.Persisted
		}
		return true
	}

	slog.Warn("transcript: replace target not found", "id", id)
	return false
}

// Snapshot returns an ordered copy of the entries. Mutating the copy does
// not affect the transcript.
func (t *Transcript) Snapshot() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]Message, len(t.entries))
	for i, entry := range t.entries {
		snapshot[i] = *entry
	}
	return snapshot
}

// Truncate drops every entry at or after index.
func (t *Transcript) Truncate(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.entries) {
		return
	}
	t.entries = t.entries[:index]
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
