package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
)

// SQLite is supported on a best-effort basis for development and testing.
// It has no push notification mechanism, so WatchSettings polls the setting
// table instead of receiving events.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode prevents most locking issues; busy_timeout covers the rest.
	// With modernc.org/sqlite each pragma must be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run migration")
		}
	}
	return nil
}

var migrationStmts = []string{
	`CREATE TABLE IF NOT EXISTS conversation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		title_source TEXT NOT NULL DEFAULT 'default',
		system_prompt TEXT NOT NULL DEFAULT '',
		generate_prompt TEXT NOT NULL DEFAULT '',
		doc_type_name TEXT NOT NULL DEFAULT '',
		created_ts INTEGER NOT NULL,
		updated_ts INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
		creator_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		created_ts INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_id, id)`,
	`CREATE TABLE IF NOT EXISTS free_talk_message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		created_ts INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		generate_prompt TEXT NOT NULL DEFAULT '',
		doc_type_name TEXT NOT NULL DEFAULT '',
		conversation_id INTEGER NOT NULL DEFAULT 0,
		creator_id INTEGER NOT NULL,
		created_ts INTEGER NOT NULL,
		updated_ts INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS setting (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_ts INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_setting (
		user_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		updated_ts INTEGER NOT NULL,
		PRIMARY KEY (user_id, key)
	)`,
}

// WatchSettings polls the setting table for rows updated since the last poll.
// SQLite has no LISTEN/NOTIFY equivalent.
func (d *DB) WatchSettings(ctx context.Context) (<-chan store.SettingEvent, error) {
	ch := make(chan store.SettingEvent, 16)
	go func() {
		defer close(ch)
		lastSeen := time.Now().UnixMilli()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := d.db.QueryContext(ctx, `SELECT key, updated_ts FROM setting WHERE updated_ts > ?`, lastSeen)
				if err != nil {
					continue
				}
				for rows.Next() {
					var key string
					var ts int64
					if err := rows.Scan(&key, &ts); err != nil {
						break
					}
					if ts > lastSeen {
						lastSeen = ts
					}
					select {
					case ch <- store.SettingEvent{Key: key}:
					case <-ctx.Done():
						rows.Close()
						return
					}
				}
				rows.Close()
			}
		}
	}()
	return ch, nil
}
