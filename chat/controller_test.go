package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/storetest"
)

// mockGenerator scripts one streamed completion per call.
type mockGenerator struct {
	mu       sync.Mutex
	deltas   []string
	err      error
	stats    *llm.CallStats
	requests [][]llm.Message

	// beforeDelta, when set, runs before each delta is sent.
	beforeDelta func(i int)
}

func (m *mockGenerator) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, messages)
	m.mu.Unlock()

	contentCh := make(chan string)
	statsCh := make(chan *llm.CallStats, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(statsCh)
		defer close(errCh)

		for i, delta := range m.deltas {
			if m.beforeDelta != nil {
				m.beforeDelta(i)
			}
			select {
			case contentCh <- delta:
			case <-ctx.Done():
				return
			}
		}
		if m.err != nil {
			errCh <- m.err
			return
		}
		stats := m.stats
		if stats == nil {
			stats = &llm.CallStats{TotalTokens: 10}
		}
		statsCh <- stats
	}()

	return contentCh, statsCh, errCh
}

func (m *mockGenerator) lastRequest() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(_ int32, notice string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

func newTestController(t *testing.T, gen Generator, conversationID int32) (*Controller, *storetest.Driver, *recordingNotifier) {
	t.Helper()
	driver := storetest.New()
	st := store.New(driver, &profile.Profile{})
	gateway := NewGateway(st, metrics.NewExporter(), 1, 3)
	gateway.sleep = func(context.Context, time.Duration) bool { return true }
	notifier := &recordingNotifier{}
	ctrl := NewController(NewTranscript("be helpful", ""), gateway, gen, metrics.NewExporter(), notifier, conversationID)
	return ctrl, driver, notifier
}

func TestSendFullTurn(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"Hel", "lo ", "there"}}
	ctrl, driver, notifier := newTestController(t, gen, 5)

	var streamed []string
	result, err := ctrl.Send(context.Background(), "hi", "gpt-4o", TurnOptions{
		OnDelta: func(delta string) { streamed = append(streamed, delta) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", result.Content)
	assert.False(t, result.Cancelled)
	assert.NotNil(t, result.Stats)
	assert.Equal(t, []string{"Hel", "lo ", "there"}, streamed)

	snapshot := ctrl.Transcript().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, RoleUser, snapshot[0].Role)
	assert.Equal(t, "hi", snapshot[0].Content)
	assert.Equal(t, RoleAssistant, snapshot[1].Role)
	assert.Equal(t, "Hello there", snapshot[1].Content)
	assert.Equal(t, StateComplete, snapshot[1].State)
	assert.Equal(t, "gpt-4o", snapshot[1].ModelID)

	// The assistant entry is reconciled to its backend row ID.
	assert.True(t, snapshot[1].Persisted)
	_, parseErr := strconv.ParseInt(snapshot[1].ID, 10, 64)
	assert.NoError(t, parseErr)

	// Both turns reach the store; the user save runs in the background.
	require.Eventually(t, func() bool {
		return len(driver.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, notifier.all())
	assert.False(t, ctrl.Busy())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestSendRequestCarriesSystemPromptAndHistory(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"first"}}
	ctrl, _, _ := newTestController(t, gen, 1)

	_, err := ctrl.Send(context.Background(), "question one", "m", TurnOptions{})
	require.NoError(t, err)

	gen.deltas = []string{"second"}
	_, err = ctrl.Send(context.Background(), "question two", "m", TurnOptions{})
	require.NoError(t, err)

	request := gen.lastRequest()
	require.Len(t, request, 4)
	assert.Equal(t, "system", request[0].Role)
	assert.Equal(t, "be helpful", request[0].Content)
	assert.Equal(t, "question one", request[1].Content)
	assert.Equal(t, "first", request[2].Content)
	assert.Equal(t, "question two", request[3].Content)
}

func TestSendRejectsOverlappingTurn(t *testing.T) {
	release := make(chan struct{})
	gen := &mockGenerator{
		deltas:      []string{"slow"},
		beforeDelta: func(int) { <-release },
	}
	ctrl, _, _ := newTestController(t, gen, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ctrl.Send(context.Background(), "first", "m", TurnOptions{})
	}()

	require.Eventually(t, ctrl.Busy, time.Second, time.Millisecond)

	_, err := ctrl.Send(context.Background(), "second", "m", TurnOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done
	assert.False(t, ctrl.Busy())
}

func TestStreamFailureKeepsPartialContent(t *testing.T) {
	gen := &mockGenerator{
		deltas: []string{"partial ", "answer"},
		err:    errors.New("connection reset"),
	}
	ctrl, driver, notifier := newTestController(t, gen, 1)

	result, err := ctrl.Send(context.Background(), "hi", "m", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", result.Content)
	assert.NotEmpty(t, result.Notice)

	snapshot := ctrl.Transcript().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "partial answer", snapshot[1].Content)
	assert.Equal(t, StateComplete, snapshot[1].State)

	// Partial content is durable, and the user is told the turn broke.
	require.Eventually(t, func() bool {
		for _, m := range driver.Messages() {
			if m.Role == "assistant" && m.Content == "partial answer" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, notifier.all())
	assert.False(t, ctrl.Busy())
}

func TestStreamFailureBeforeFirstDeltaMarksFailed(t *testing.T) {
	gen := &mockGenerator{err: errors.New("dial timeout")}
	ctrl, driver, notifier := newTestController(t, gen, 1)

	result, err := ctrl.Send(context.Background(), "hi", "m", TurnOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Content)
	assert.NotEmpty(t, result.Notice)

	snapshot := ctrl.Transcript().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, StateFailed, snapshot[1].State)

	// Only the user turn is persisted; an empty reply writes nothing.
	require.Eventually(t, func() bool {
		return len(driver.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "user", driver.Messages()[0].Role)
	assert.NotEmpty(t, notifier.all())
}

func TestCancellationStopsFoldingAndKeepsPrefix(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"keep this", " drop this", " and this"}}
	ctrl, _, _ := newTestController(t, gen, 1)

	result, err := ctrl.Send(context.Background(), "hi", "m", TurnOptions{
		OnDelta: func(string) { ctrl.CancelActive() },
	})
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, "keep this", result.Content)

	snapshot := ctrl.Transcript().Snapshot()
	assert.Equal(t, "keep this", snapshot[1].Content)
	assert.Equal(t, StateComplete, snapshot[1].State)
	assert.False(t, ctrl.Busy())
}

func TestFreeTalkTurnsRouteToFreeTalkTable(t *testing.T) {
	gen := &mockGenerator{deltas: []string{"sure"}}
	ctrl, driver, _ := newTestController(t, gen, 0)

	_, err := ctrl.Send(context.Background(), "quick question", "m", TurnOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(driver.FreeTalkMessages()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, driver.Messages())
}
