package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/store"
)

// CanRegenerate reports whether the entry at targetIndex may be regenerated:
// it must be an assistant turn and every later entry must be a user turn.
// Regenerating an answer that already has a later assistant reply would
// invalidate that reply's context, so it is refused.
func CanRegenerate(snapshot []Message, targetIndex int) bool {
	if targetIndex < 0 || targetIndex >= len(snapshot) {
		return false
	}
	if snapshot[targetIndex].Role != RoleAssistant {
		return false
	}
	for _, entry := range snapshot[targetIndex+1:] {
		if entry.Role != RoleUser {
			return false
		}
	}
	return true
}

// Regenerate re-runs the generation for an existing assistant entry. The
// entry keeps its ID and position; content resets to empty, the timestamp is
// refreshed, and the request history is everything strictly before the
// target. Completion overwrites the persisted row in place, so the
// conversation never grows a duplicate answer.
func (c *Controller) Regenerate(ctx context.Context, targetID string, opts TurnOptions) (*TurnResult, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer func() {
		c.setSession(nil)
		c.setState(StateIdle)
		c.busy.Store(false)
	}()

	snapshot := c.transcript.Snapshot()
	targetIndex := -1
	for i := range snapshot {
		if snapshot[i].ID == targetID {
			targetIndex = i
			break
		}
	}
	if !CanRegenerate(snapshot, targetIndex) {
		return nil, ErrNotRegenerable
	}
	target := snapshot[targetIndex]

	history := make([]llm.Message, 0, targetIndex+1)
	if prompt := c.transcript.SystemPrompt(); prompt != "" {
		history = append(history, llm.SystemPrompt(prompt))
	}
	for _, entry := range snapshot[:targetIndex] {
		if entry.Role == RoleSystem || entry.State != StateComplete || entry.Content == "" {
			continue
		}
		history = append(history, llm.Message{Role: string(entry.Role), Content: entry.Content})
	}

	now := time.Now().UnixMilli()
	empty := ""
	c.transcript.Replace(targetID, MessagePatch{
		Content:   &empty,
		State:     ptr(StatePending),
		CreatedTs: &now,
	})

	session := newStreamSession(targetID, target.ModelID)
	if target.Persisted {
		// Reuse the persisted row: completion becomes an update, not an
		// insert.
		if id, err := strconv.ParseInt(target.ID, 10, 64); err == nil {
			session.draftID = id
		}
	}
	c.setSession(session)

	result, err := c.runStream(ctx, session, history, opts)
	if err != nil {
		return nil, err
	}

	if result.Content != "" && session.draftID != 0 {
		c.gateway.Update(ctx, session.draftID, &store.UpdateMessage{
			CreatedTs: &now,
		})
	}
	return result, nil
}
