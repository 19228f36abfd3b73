package store

// Well-known user setting keys.
const (
	UserSettingLastModel = "chat.last-model"
)

// UserSetting is a per-user preference row, e.g. the last-used model.
type UserSetting struct {
	Value     string
	Key       string
	UpdatedTs int64
	UserID    int32
}

type FindUserSetting struct {
	UserID *int32
	Key    *string
}

type UpsertUserSetting struct {
	Value  string
	Key    string
	UserID int32
}
