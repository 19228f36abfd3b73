package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhu/aidocs/store"
)

func TestCanRegenerate(t *testing.T) {
	tests := []struct {
		name     string
		snapshot []Message
		target   int
		want     bool
	}{
		{
			name: "last assistant turn",
			snapshot: []Message{
				{Role: RoleUser},
				{Role: RoleAssistant},
			},
			target: 1,
			want:   true,
		},
		{
			name: "assistant followed only by user turns",
			snapshot: []Message{
				{Role: RoleUser},
				{Role: RoleAssistant},
				{Role: RoleUser},
			},
			target: 1,
			want:   true,
		},
		{
			name: "assistant followed by a later assistant turn",
			snapshot: []Message{
				{Role: RoleUser},
				{Role: RoleAssistant},
				{Role: RoleUser},
				{Role: RoleAssistant},
			},
			target: 1,
			want:   false,
		},
		{
			name: "target is a user turn",
			snapshot: []Message{
				{Role: RoleUser},
				{Role: RoleAssistant},
			},
			target: 0,
			want:   false,
		},
		{
			name:     "index out of range",
			snapshot: []Message{{Role: RoleAssistant}},
			target:   3,
			want:     false,
		},
		{
			name:     "negative index",
			snapshot: []Message{{Role: RoleAssistant}},
			target:   -1,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanRegenerate(tt.snapshot, tt.target))
		})
	}
}

func TestRegenerateOverwritesInPlace(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"better ", "answer"}}
	ctrl, driver, _ := newTestController(t, gen, 1)

	// Seed a persisted exchange the way the server hydrates one.
	driver.SeedMessage(&store.Message{ID: 11, ConversationID: 1, Role: "user", Content: "question", CreatedTs: 100})
	driver.SeedMessage(&store.Message{ID: 12, ConversationID: 1, Role: "assistant", Content: "old answer", ModelID: "m", CreatedTs: 200})
	ctrl.Transcript().Append(&Message{ID: "11", Role: RoleUser, State: StateComplete, Content: "question", ConversationID: 1, CreatedTs: 100, Persisted: true})
	ctrl.Transcript().Append(&Message{ID: "12", Role: RoleAssistant, State: StateComplete, Content: "old answer", ConversationID: 1, ModelID: "m", CreatedTs: 200, Persisted: true})

	before := time.Now().UnixMilli()
	result, err := ctrl.Regenerate(context.Background(), "12", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "better answer", result.Content)
	assert.Equal(t, "12", result.MessageID)

	// Same entry, same position, refreshed timestamp.
	snapshot := ctrl.Transcript().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "12", snapshot[1].ID)
	assert.Equal(t, "better answer", snapshot[1].Content)
	assert.Equal(t, StateComplete, snapshot[1].State)
	assert.GreaterOrEqual(t, snapshot[1].CreatedTs, before)

	// The persisted row was overwritten, not duplicated.
	rows := driver.Messages()
	require.Len(t, rows, 2)
	assert.Equal(t, "better answer", rows[1].Content)

	// The request history stops strictly before the target.
	request := gen.lastRequest()
	require.Len(t, request, 2)
	assert.Equal(t, "system", request[0].Role)
	assert.Equal(t, "question", request[1].Content)
}

func TestRegenerateRefusesStaleTarget(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"x"}}
	ctrl, _, _ := newTestController(t, gen, 1)

	ctrl.Transcript().Append(&Message{ID: "1", Role: RoleUser, State: StateComplete, Content: "q1"})
	ctrl.Transcript().Append(&Message{ID: "2", Role: RoleAssistant, State: StateComplete, Content: "a1"})
	ctrl.Transcript().Append(&Message{ID: "3", Role: RoleUser, State: StateComplete, Content: "q2"})
	ctrl.Transcript().Append(&Message{ID: "4", Role: RoleAssistant, State: StateComplete, Content: "a2"})

	_, err := ctrl.Regenerate(context.Background(), "2", TurnOptions{})
	assert.ErrorIs(t, err, ErrNotRegenerable)

	_, err = ctrl.Regenerate(context.Background(), "missing", TurnOptions{})
	assert.ErrorIs(t, err, ErrNotRegenerable)
}

func TestRegenerateUnpersistedTargetInsertsOnce(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"fresh"}}
	ctrl, driver, _ := newTestController(t, gen, 1)

	ctrl.Transcript().Append(&Message{ID: "u1", Role: RoleUser, State: StateComplete, Content: "q"})
	ctrl.Transcript().Append(&Message{ID: "a1", Role: RoleAssistant, State: StateComplete, Content: "lost answer"})

	result, err := ctrl.Regenerate(context.Background(), "a1", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", result.Content)

	rows := driver.Messages()
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].Content)
	assert.Equal(t, "assistant", rows[0].Role)
}
