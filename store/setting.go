package store

// Setting is one key/value row of the remote configuration table.
//
// Key conventions (mirrored by the frontend):
//   - "router.selected"                  -> router identifier string
//   - "model.<modelID>"                  -> {"enabled": bool} JSON
//   - "router.config.<routerID>.<field>" -> plain string (baseUrl, apiKey)
type Setting struct {
	Key       string
	Value     string // JSON or plain string depending on the key
	UpdatedTs int64
}

type FindSetting struct {
	Key       *string
	KeyPrefix *string
	Keys      []string
}

type UpsertSetting struct {
	Key   string
	Value string
}

// SettingEvent is a change notification pushed by the driver when any setting
// row is inserted or updated.
type SettingEvent struct {
	Key string
}
