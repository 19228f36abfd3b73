package store

import (
	"context"

	"github.com/anthonyhu/aidocs/internal/profile"
)

// Driver is the database access interface implemented by each backend.
type Driver interface {
	GetDB() any
	Close() error
	Migrate(ctx context.Context) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error)

	CreateFreeTalkMessage(ctx context.Context, create *CreateFreeTalkMessage) (*FreeTalkMessage, error)
	ListFreeTalkMessages(ctx context.Context, find *FindFreeTalkMessage) ([]*FreeTalkMessage, error)

	CreateDocument(ctx context.Context, create *CreateDocument) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error)
	DeleteDocument(ctx context.Context, delete *DeleteDocument) error

	ListSettings(ctx context.Context, find *FindSetting) ([]*Setting, error)
	UpsertSetting(ctx context.Context, upsert *UpsertSetting) (*Setting, error)
	// WatchSettings delivers a SettingEvent whenever a setting row changes.
	// The channel is closed when ctx is cancelled.
	WatchSettings(ctx context.Context) (<-chan SettingEvent, error)

	GetUserSetting(ctx context.Context, find *FindUserSetting) (*UserSetting, error)
	UpsertUserSetting(ctx context.Context, upsert *UpsertUserSetting) (*UserSetting, error)
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error) {
	return s.driver.UpdateMessage(ctx, update)
}

func (s *Store) CreateFreeTalkMessage(ctx context.Context, create *CreateFreeTalkMessage) (*FreeTalkMessage, error) {
	return s.driver.CreateFreeTalkMessage(ctx, create)
}

func (s *Store) ListFreeTalkMessages(ctx context.Context, find *FindFreeTalkMessage) ([]*FreeTalkMessage, error) {
	return s.driver.ListFreeTalkMessages(ctx, find)
}

func (s *Store) CreateDocument(ctx context.Context, create *CreateDocument) (*Document, error) {
	return s.driver.CreateDocument(ctx, create)
}

func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, find)
}

func (s *Store) UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error) {
	return s.driver.UpdateDocument(ctx, update)
}

func (s *Store) DeleteDocument(ctx context.Context, delete *DeleteDocument) error {
	return s.driver.DeleteDocument(ctx, delete)
}

func (s *Store) ListSettings(ctx context.Context, find *FindSetting) ([]*Setting, error) {
	return s.driver.ListSettings(ctx, find)
}

func (s *Store) UpsertSetting(ctx context.Context, upsert *UpsertSetting) (*Setting, error) {
	return s.driver.UpsertSetting(ctx, upsert)
}

func (s *Store) WatchSettings(ctx context.Context) (<-chan SettingEvent, error) {
	return s.driver.WatchSettings(ctx)
}

func (s *Store) GetUserSetting(ctx context.Context, find *FindUserSetting) (*UserSetting, error) {
	return s.driver.GetUserSetting(ctx, find)
}

func (s *Store) UpsertUserSetting(ctx context.Context, upsert *UpsertUserSetting) (*UserSetting, error) {
	return s.driver.UpsertUserSetting(ctx, upsert)
}
