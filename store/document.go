package store

// Document is a synthesized document persisted from a conversation.
type Document struct {
	UID            string
	Title          string
	Content        string
	GeneratePrompt string
	DocTypeName    string
	CreatedTs      int64
	UpdatedTs      int64
	ID             int64
	ConversationID int32
	CreatorID      int32
}

type CreateDocument struct {
	UID            string
	Title          string
	Content        string
	GeneratePrompt string
	DocTypeName    string
	ConversationID int32
	CreatorID      int32
	CreatedTs      int64
	UpdatedTs      int64
}

type UpdateDocument struct {
	Title     *string
	Content   *string
	UpdatedTs *int64
	ID        int64
}

type FindDocument struct {
	ID             *int64
	UID            *string
	ConversationID *int32
	CreatorID      *int32
}

type DeleteDocument struct {
	ID int64
}
