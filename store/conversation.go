package store

// TitleSource indicates how the conversation title was created.
// - "default": system default ("New Chat")
// - "auto": derived from the first user message
// - "user": user-provided title (manual edit)
type TitleSource string

const (
	TitleSourceDefault TitleSource = "default"
	TitleSourceAuto    TitleSource = "auto"
	TitleSourceUser    TitleSource = "user"
)

type Conversation struct {
	UID            string
	Title          string
	TitleSource    TitleSource
	SystemPrompt   string // used for general chat turns
	GeneratePrompt string // used only by document synthesis
	DocTypeName    string // document template the conversation was started from, if any
	CreatedTs      int64
	UpdatedTs      int64
	ID             int32
	CreatorID      int32
}

type FindConversation struct {
	ID        *int32
	UID       *string
	CreatorID *int32
}

type UpdateConversation struct {
	Title          *string
	TitleSource    *TitleSource
	SystemPrompt   *string
	GeneratePrompt *string
	UpdatedTs      *int64
	ID             int32
}

type DeleteConversation struct {
	ID int32
}
