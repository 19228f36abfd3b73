// Package storetest provides an in-memory store.Driver for tests, with
// error injection for persistence failure paths.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthonyhu/aidocs/store"
)

// Driver is an in-memory store.Driver. Zero value is not usable; call New.
type Driver struct {
	mu sync.Mutex

	conversations []*store.Conversation
	messages      []*store.Message
	freeTalk      []*store.FreeTalkMessage
	documents     []*store.Document
	settings      map[string]*store.Setting
	userSettings  map[string]*store.UserSetting

	nextID int64

	// FailNextCreates makes that many upcoming message/free-talk inserts
	// fail before the driver starts succeeding again.
	FailNextCreates int

	// CreateUIDs records the idempotency key of every insert attempt,
	// including failed ones.
	CreateUIDs []string

	// UpdateCount counts message row updates.
	UpdateCount int

	events chan store.SettingEvent
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{
		settings:     make(map[string]*store.Setting),
		userSettings: make(map[string]*store.UserSetting),
		events:       make(chan store.SettingEvent, 16),
	}
}

func (d *Driver) GetDB() any                    { return nil }
func (d *Driver) Close() error                  { return nil }
func (d *Driver) Migrate(context.Context) error { return nil }

func (d *Driver) allocID() int64 {
	d.nextID++
	return d.nextID
}

func (d *Driver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	create.ID = int32(d.allocID())
	copied := *create
	d.conversations = append(d.conversations, &copied)
	return create, nil
}

func (d *Driver) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []*store.Conversation{}
	for _, c := range d.conversations {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.CreatorID != nil && c.CreatorID != *find.CreatorID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conversations {
		if c.ID != update.ID {
			continue
		}
		if update.Title != nil {
			c.Title = *update.Title
		}
		if update.TitleSource != nil {
			c.TitleSource = *update.TitleSource
		}
		if update.SystemPrompt != nil {
			c.SystemPrompt = *update.SystemPrompt
		}
		if update.GeneratePrompt != nil {
			c.GeneratePrompt = *update.GeneratePrompt
		}
		if update.UpdatedTs != nil {
			c.UpdatedTs = *update.UpdatedTs
		}
		copied := *c
		return &copied, nil
	}
	return nil, fmt.Errorf("conversation not found")
}

func (d *Driver) DeleteConversation(_ context.Context, delete *store.DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.conversations {
		if c.ID == delete.ID {
			d.conversations = append(d.conversations[:i], d.conversations[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("conversation not found")
}

func (d *Driver) CreateMessage(_ context.Context, create *store.CreateMessage) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CreateUIDs = append(d.CreateUIDs, create.UID)
	if d.FailNextCreates > 0 {
		d.FailNextCreates--
		return nil, fmt.Errorf("injected insert failure")
	}

	// Same idempotency semantics as the real drivers: a retried insert
	// resolves to the existing row.
	for _, m := range d.messages {
		if m.UID == create.UID {
			copied := *m
			return &copied, nil
		}
	}

	msg := &store.Message{
		ID:             d.allocID(),
		UID:            create.UID,
		ConversationID: create.ConversationID,
		CreatorID:      create.CreatorID,
		Role:           create.Role,
		Content:        create.Content,
		ModelID:        create.ModelID,
		CreatedTs:      create.CreatedTs,
	}
	d.messages = append(d.messages, msg)
	copied := *msg
	return &copied, nil
}

func (d *Driver) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []*store.Message{}
	for _, m := range d.messages {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UID != nil && m.UID != *find.UID {
			continue
		}
		if find.ConversationID != nil && m.ConversationID != *find.ConversationID {
			continue
		}
		if find.CreatorID != nil && m.CreatorID != *find.CreatorID {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) UpdateMessage(_ context.Context, update *store.UpdateMessage) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.messages {
		if m.ID != update.ID {
			continue
		}
		d.UpdateCount++
		if update.Content != nil {
			m.Content = *update.Content
		}
		if update.ModelID != nil {
			m.ModelID = *update.ModelID
		}
		if update.CreatedTs != nil {
			m.CreatedTs = *update.CreatedTs
		}
		copied := *m
		return &copied, nil
	}
	return nil, fmt.Errorf("message not found")
}

func (d *Driver) CreateFreeTalkMessage(_ context.Context, create *store.CreateFreeTalkMessage) (*store.FreeTalkMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CreateUIDs = append(d.CreateUIDs, create.UID)
	if d.FailNextCreates > 0 {
		d.FailNextCreates--
		return nil, fmt.Errorf("injected insert failure")
	}

	for _, m := range d.freeTalk {
		if m.UID == create.UID {
			copied := *m
			return &copied, nil
		}
	}

	msg := &store.FreeTalkMessage{
		ID:        d.allocID(),
		UID:       create.UID,
		CreatorID: create.CreatorID,
		Role:      create.Role,
		Content:   create.Content,
		ModelID:   create.ModelID,
		CreatedTs: create.CreatedTs,
	}
	d.freeTalk = append(d.freeTalk, msg)
	copied := *msg
	return &copied, nil
}

func (d *Driver) ListFreeTalkMessages(_ context.Context, find *store.FindFreeTalkMessage) ([]*store.FreeTalkMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []*store.FreeTalkMessage{}
	for _, m := range d.freeTalk {
		if find.CreatorID != nil && m.CreatorID != *find.CreatorID {
			continue
		}
		if find.SinceTs != nil && m.CreatedTs < *find.SinceTs {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) CreateDocument(_ context.Context, create *store.CreateDocument) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc := &store.Document{
		ID:             d.allocID(),
		UID:            create.UID,
		Title:          create.Title,
		Content:        create.Content,
		GeneratePrompt: create.GeneratePrompt,
		DocTypeName:    create.DocTypeName,
		ConversationID: create.ConversationID,
		CreatorID:      create.CreatorID,
		CreatedTs:      create.CreatedTs,
		UpdatedTs:      create.UpdatedTs,
	}
	d.documents = append(d.documents, doc)
	copied := *doc
	return &copied, nil
}

func (d *Driver) ListDocuments(_ context.Context, find *store.FindDocument) ([]*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []*store.Document{}
	for _, doc := range d.documents {
		if find.ID != nil && doc.ID != *find.ID {
			continue
		}
		if find.UID != nil && doc.UID != *find.UID {
			continue
		}
		if find.ConversationID != nil && doc.ConversationID != *find.ConversationID {
			continue
		}
		if find.CreatorID != nil && doc.CreatorID != *find.CreatorID {
			continue
		}
		copied := *doc
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) UpdateDocument(_ context.Context, update *store.UpdateDocument) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.documents {
		if doc.ID != update.ID {
			continue
		}
		if update.Title != nil {
			doc.Title = *update.Title
		}
		if update.Content != nil {
			doc.Content = *update.Content
		}
		if update.UpdatedTs != nil {
			doc.UpdatedTs = *update.UpdatedTs
		}
		copied := *doc
		return &copied, nil
	}
	return nil, fmt.Errorf("document not found")
}

func (d *Driver) DeleteDocument(_ context.Context, delete *store.DeleteDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, doc := range d.documents {
		if doc.ID == delete.ID {
			d.documents = append(d.documents[:i], d.documents[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("document not found")
}

func (d *Driver) ListSettings(_ context.Context, find *store.FindSetting) ([]*store.Setting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []*store.Setting{}
	for _, s := range d.settings {
		if find.Key != nil && s.Key != *find.Key {
			continue
		}
		if find.KeyPrefix != nil && !strings.HasPrefix(s.Key, *find.KeyPrefix) {
			continue
		}
		if len(find.Keys) > 0 {
			found := false
			for _, k := range find.Keys {
				if s.Key == k {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Driver) UpsertSetting(_ context.Context, upsert *store.UpsertSetting) (*store.Setting, error) {
	d.mu.Lock()
	setting := &store.Setting{
		Key:       upsert.Key,
		Value:     upsert.Value,
		UpdatedTs: time.Now().UnixMilli(),
	}
	d.settings[upsert.Key] = setting
	d.mu.Unlock()

	select {
	case d.events <- store.SettingEvent{Key: upsert.Key}:
	default:
	}

	copied := *setting
	return &copied, nil
}

func (d *Driver) WatchSettings(ctx context.Context) (<-chan store.SettingEvent, error) {
	out := make(chan store.SettingEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *Driver) GetUserSetting(_ context.Context, find *store.FindUserSetting) (*store.UserSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.userSettings {
		if find.UserID != nil && s.UserID != *find.UserID {
			continue
		}
		if find.Key != nil && s.Key != *find.Key {
			continue
		}
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (d *Driver) UpsertUserSetting(_ context.Context, upsert *store.UpsertUserSetting) (*store.UserSetting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setting := &store.UserSetting{
		UserID:    upsert.UserID,
		Key:       upsert.Key,
		Value:     upsert.Value,
		UpdatedTs: time.Now().UnixMilli(),
	}
	d.userSettings[fmt.Sprintf("%d/%s", upsert.UserID, upsert.Key)] = setting
	copied := *setting
	return &copied, nil
}

// Messages returns a copy of the stored conversation messages.
func (d *Driver) Messages() []store.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.Message, len(d.messages))
	for i, m := range d.messages {
		out[i] = *m
	}
	return out
}

// FreeTalkMessages returns a copy of the stored free-talk messages.
func (d *Driver) FreeTalkMessages() []store.FreeTalkMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.FreeTalkMessage, len(d.freeTalk))
	for i, m := range d.freeTalk {
		out[i] = *m
	}
	return out
}

// Documents returns a copy of the stored documents.
func (d *Driver) Documents() []store.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.Document, len(d.documents))
	for i, doc := range d.documents {
		out[i] = *doc
	}
	return out
}

// SeedMessage inserts a message row directly, bypassing failure injection.
func (d *Driver) SeedMessage(m *store.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m.ID == 0 {
		m.ID = d.allocID()
	} else if m.ID > d.nextID {
		d.nextID = m.ID
	}
	copied := *m
	d.messages = append(d.messages, &copied)
}

// SeedConversation inserts a conversation row directly.
func (d *Driver) SeedConversation(c *store.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.ID == 0 {
		c.ID = int32(d.allocID())
	}
	copied := *c
	d.conversations = append(d.conversations, &copied)
}

// SeedUserSetting inserts a user setting row directly.
func (d *Driver) SeedUserSetting(userID int32, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userSettings[fmt.Sprintf("%d/%s", userID, key)] = &store.UserSetting{
		UserID: userID,
		Key:    key,
		Value:  value,
	}
}

// SeedSetting inserts a setting row without emitting a change event.
func (d *Driver) SeedSetting(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings[key] = &store.Setting{Key: key, Value: value, UpdatedTs: time.Now().UnixMilli()}
}
