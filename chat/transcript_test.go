package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppendAssignsProvisionalID(t *testing.T) {
	transcript := NewTranscript("", "")

	m := transcript.Append(&Message{Role: RoleUser, Content: "hello", State: StateComplete})
	assert.NotEmpty(t, m.ID)

	m2 := transcript.Append(&Message{ID: "fixed", Role: RoleAssistant})
	assert.Equal(t, "fixed", m2.ID)
	assert.Equal(t, 2, transcript.Len())
}

func TestTranscriptReplaceMergesPatch(t *testing.T) {
	transcript := NewTranscript("", "")
	m := transcript.Append(&Message{Role: RoleAssistant, State: StatePending})

	content := "partial"
	ok := transcript.Replace(m.ID, MessagePatch{Content: &content, State: ptr(StateStreaming)})
	require.True(t, ok)

	snapshot := transcript.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "partial", snapshot[0].Content)
	assert.Equal(t, StateStreaming, snapshot[0].State)
	// Untouched fields survive the merge.
	assert.Equal(t, RoleAssistant, snapshot[0].Role)
}

func TestTranscriptReplaceUnknownIDIsDropped(t *testing.T) {
	transcript := NewTranscript("", "")
	transcript.Append(&Message{Role: RoleUser, Content: "hi"})

	content := "stale"
	ok := transcript.Replace("no-such-id", MessagePatch{Content: &content})
	assert.False(t, ok)

	snapshot := transcript.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "hi", snapshot[0].Content)
}

func TestTranscriptReplacePreservesPositionAndLength(t *testing.T) {
	transcript := NewTranscript("", "")
	first := transcript.Append(&Message{Role: RoleUser, Content: "one"})
	second := transcript.Append(&Message{Role: RoleAssistant, Content: "two"})
	third := transcript.Append(&Message{Role: RoleUser, Content: "three"})

	content := "rewritten"
	require.True(t, transcript.Replace(second.ID, MessagePatch{Content: &content}))

	snapshot := transcript.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, first.ID, snapshot[0].ID)
	assert.Equal(t, "rewritten", snapshot[1].Content)
	assert.Equal(t, third.ID, snapshot[2].ID)
}

func TestTranscriptSnapshotIsImmutableCopy(t *testing.T) {
	transcript := NewTranscript("", "")
	m := transcript.Append(&Message{Role: RoleUser, Content: "original"})

	snapshot := transcript.Snapshot()
	snapshot[0].Content = "mutated"

	fresh := transcript.Snapshot()
	assert.Equal(t, "original", fresh[0].Content)
	assert.Equal(t, m.ID, fresh[0].ID)
}

func TestTranscriptConcurrentReplacesFullyApply(t *testing.T) {
	transcript := NewTranscript("", "")
	m := transcript.Append(&Message{Role: RoleAssistant})

	const rounds = 200
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				content := fmt.Sprintf("writer-%d-%d", w, i)
				transcript.Replace(m.ID, MessagePatch{Content: &content, State: ptr(StateStreaming)})
			}
		}(w)
	}
	wg.Wait()

	// Whichever write landed last, it landed whole.
	snapshot := transcript.Snapshot()
	assert.Regexp(t, `^writer-[01]-\d+$`, snapshot[0].Content)
	assert.Equal(t, StateStreaming, snapshot[0].State)
}

func TestTranscriptTruncate(t *testing.T) {
	transcript := NewTranscript("", "")
	transcript.Append(&Message{Role: RoleUser, Content: "a"})
	transcript.Append(&Message{Role: RoleAssistant, Content: "b"})
	transcript.Append(&Message{Role: RoleUser, Content: "c"})

	transcript.Truncate(1)
	assert.Equal(t, 1, transcript.Len())

	// Out-of-range indexes are ignored.
	transcript.Truncate(5)
	transcript.Truncate(-1)
	assert.Equal(t, 1, transcript.Len())
}
