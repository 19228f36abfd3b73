package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/store"
)

// SaveResult reports the outcome of a logical save. Exhausted retries are a
// value, not an error: the transcript stays authoritative either way.
type SaveResult struct {
	ID int64 // backend-issued row ID, 0 when OK is false
	OK bool
}

const (
	defaultRetryCount = 3

	// Mid-stream draft writes are throttled to one per interval so a fast
	// token stream does not turn into a write storm.
	draftSaveInterval = 2 * time.Second
)

// Gateway persists transcript entries with bounded retries. Failures are
// absorbed: a message that cannot be saved stays in the transcript and the
// caller is told via the result value.
type Gateway struct {
	store      *store.Store
	metrics    *metrics.Exporter
	creatorID  int32
	retryCount int
	limiter    *rate.Limiter

	// test hook; defaults to time.Sleep-with-context
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewGateway creates a persistence gateway. retryCount <= 0 uses the default.
func NewGateway(st *store.Store, exporter *metrics.Exporter, creatorID int32, retryCount int) *Gateway {
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	return &Gateway{
		store:      st,
		metrics:    exporter,
		creatorID:  creatorID,
		retryCount: retryCount,
		limiter:    rate.NewLimiter(rate.Every(draftSaveInterval), 1),
		sleep:      sleepCtx,
	}
}

// Save inserts the message, retrying up to the configured count with
// increasing backoff. One idempotency key covers the whole logical save, so
// a retry after an ambiguous failure resolves to the existing row instead of
// inserting a duplicate. An empty uid gets a fresh key.
func (g *Gateway) Save(ctx context.Context, msg *Message, uid string) SaveResult {
	if uid == "" {
		uid = uuid.NewString()
	}

	table := "message"
	if msg.ConversationID == 0 {
		table = "free_talk_message"
	}

	var lastErr error
	for attempt := 1; attempt <= g.retryCount; attempt++ {
		g.metrics.RecordSaveAttempt(table)

		id, err := g.insert(ctx, msg, uid)
		if err == nil {
			return SaveResult{ID: id, OK: true}
		}
		lastErr = err

		slog.Warn("gateway: save attempt failed",
			"table", table,
			"attempt", attempt,
			"retries", g.retryCount,
			"error", err,
		)

		if attempt < g.retryCount {
			backoff := time.Duration(attempt) * time.Second
			if !g.sleep(ctx, backoff) {
				break
			}
		}
	}

	g.metrics.RecordSaveFailure(table)
	slog.Error("gateway: save exhausted all retries",
		"table", table,
		"role", string(msg.Role),
		"conversation_id", msg.ConversationID,
		"error", lastErr,
	)
	return SaveResult{}
}

func (g *Gateway) insert(ctx context.Context, msg *Message, uid string) (int64, error) {
	if msg.ConversationID == 0 {
		created, err := g.store.CreateFreeTalkMessage(ctx, &store.CreateFreeTalkMessage{
			UID:       uid,
			CreatorID: g.creatorID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			ModelID:   msg.ModelID,
			CreatedTs: msg.CreatedTs,
		})
		if err != nil {
			return 0, err
		}
		return created.ID, nil
	}

	created, err := g.store.CreateMessage(ctx, &store.CreateMessage{
		UID:            uid,
		ConversationID: msg.ConversationID,
		CreatorID:      g.creatorID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		ModelID:        msg.ModelID,
		CreatedTs:      msg.CreatedTs,
	})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// Update overwrites the persisted row in place. Single attempt, best-effort.
func (g *Gateway) Update(ctx context.Context, id int64, update *store.UpdateMessage) bool {
	update.ID = id
	if _, err := g.store.UpdateMessage(ctx, update); err != nil {
		slog.Warn("gateway: update failed", "id", id, "error", err)
		return false
	}
	return true
}

// AllowDraftSave reports whether a mid-stream draft write is allowed right
// now. Throttled so streaming responsiveness never waits on the store.
func (g *Gateway) AllowDraftSave() bool {
	return g.limiter.Allow()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
