package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/storetest"
)

func newTestGateway(t *testing.T, retryCount int) (*Gateway, *storetest.Driver) {
	t.Helper()
	driver := storetest.New()
	st := store.New(driver, &profile.Profile{})
	g := NewGateway(st, metrics.NewExporter(), 1, retryCount)
	// No real sleeping in tests.
	g.sleep = func(context.Context, time.Duration) bool { return true }
	return g, driver
}

func TestGatewaySaveSucceedsFirstAttempt(t *testing.T) {
	g, driver := newTestGateway(t, 3)

	msg := NewUserMessage(7, "hello")
	result := g.Save(context.Background(), msg, "")

	require.True(t, result.OK)
	assert.NotZero(t, result.ID)

	rows := driver.Messages()
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0].Content)
	assert.Equal(t, int32(7), rows[0].ConversationID)
	assert.Equal(t, "user", rows[0].Role)
}

func TestGatewaySaveRetriesWithStableIdempotencyKey(t *testing.T) {
	g, driver := newTestGateway(t, 3)
	driver.FailNextCreates = 2

	msg := NewUserMessage(1, "retry me")
	result := g.Save(context.Background(), msg, "")

	require.True(t, result.OK)
	require.Len(t, driver.CreateUIDs, 3)
	// Every attempt of one logical save carries the same key, so a retry
	// after an ambiguous failure cannot duplicate the row.
	assert.Equal(t, driver.CreateUIDs[0], driver.CreateUIDs[1])
	assert.Equal(t, driver.CreateUIDs[1], driver.CreateUIDs[2])
	assert.Len(t, driver.Messages(), 1)
}

func TestGatewaySaveExhaustionIsAResultNotAnError(t *testing.T) {
	g, driver := newTestGateway(t, 3)
	driver.FailNextCreates = 3

	result := g.Save(context.Background(), NewUserMessage(1, "doomed"), "")

	assert.False(t, result.OK)
	assert.Zero(t, result.ID)
	assert.Len(t, driver.CreateUIDs, 3)
	assert.Empty(t, driver.Messages())
}

func TestGatewaySaveRoutesFreeTalkMessages(t *testing.T) {
	g, driver := newTestGateway(t, 3)

	msg := NewUserMessage(0, "ephemeral")
	result := g.Save(context.Background(), msg, "")

	require.True(t, result.OK)
	assert.Empty(t, driver.Messages())

	freeTalk := driver.FreeTalkMessages()
	require.Len(t, freeTalk, 1)
	assert.Equal(t, "ephemeral", freeTalk[0].Content)
	assert.Equal(t, int32(1), freeTalk[0].CreatorID)
	assert.NotZero(t, freeTalk[0].CreatedTs)
}

func TestGatewaySaveStopsWhenContextCancelled(t *testing.T) {
	g, driver := newTestGateway(t, 3)
	driver.FailNextCreates = 3
	g.sleep = func(context.Context, time.Duration) bool { return false }

	result := g.Save(context.Background(), NewUserMessage(1, "cancelled"), "")

	assert.False(t, result.OK)
	// First attempt failed, backoff was interrupted, no further attempts.
	assert.Len(t, driver.CreateUIDs, 1)
}

func TestGatewayUpdateIsSingleAttempt(t *testing.T) {
	g, driver := newTestGateway(t, 3)
	driver.SeedMessage(&store.Message{ID: 42, Content: "old"})

	content := "new"
	assert.True(t, g.Update(context.Background(), 42, &store.UpdateMessage{Content: &content}))
	assert.Equal(t, "new", driver.Messages()[0].Content)

	assert.False(t, g.Update(context.Background(), 999, &store.UpdateMessage{Content: &content}))
}

func TestGatewayDraftSaveThrottle(t *testing.T) {
	g, _ := newTestGateway(t, 3)

	assert.True(t, g.AllowDraftSave())
	// The second permit inside the same interval is refused.
	assert.False(t, g.AllowDraftSave())
}
