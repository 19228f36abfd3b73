package store

// Message is one persisted transcript entry.
type Message struct {
	ID             int64
	UID            string // client-supplied idempotency key; stable across insert retries
	ConversationID int32
	CreatorID      int32
	Role           string // system, user, assistant
	Content        string
	ModelID        string // generation backend identifier, assistant entries only
	CreatedTs      int64
}

type CreateMessage struct {
	UID            string
	ConversationID int32
	CreatorID      int32
	Role           string
	Content        string
	ModelID        string
	CreatedTs      int64
}

// UpdateMessage overwrites a persisted row in place. Used by regeneration so
// the conversation length does not grow.
type UpdateMessage struct {
	Content   *string
	ModelID   *string
	CreatedTs *int64
	ID        int64
}

type FindMessage struct {
	ID             *int64
	UID            *string
	ConversationID *int32
	CreatorID      *int32
}

// FreeTalkMessage is a transcript entry of an ephemeral conversation that has
// no backend conversation row. Keyed by creator + timestamp.
type FreeTalkMessage struct {
	ID        int64
	UID       string
	CreatorID int32
	Role      string
	Content   string
	ModelID   string
	CreatedTs int64
}

type CreateFreeTalkMessage struct {
	UID       string
	CreatorID int32
	Role      string
	Content   string
	ModelID   string
	CreatedTs int64
}

type FindFreeTalkMessage struct {
	CreatorID *int32
	SinceTs   *int64
}
