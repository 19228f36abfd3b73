package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
)

// settingChannel is the NOTIFY channel used to push setting changes.
const settingChannel = "aidocs_setting_change"

type DB struct {
	db      *sql.DB
	dsn     string
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection with the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}

	return &DB{db: db, dsn: profile.DSN, profile: profile}, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. Statements are idempotent so the server can
// run them on every start.
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
		id SERIAL PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		title_source TEXT NOT NULL DEFAULT 'default',
		system_prompt TEXT NOT NULL DEFAULT '',
		generate_prompt TEXT NOT NULL DEFAULT '',
		doc_type_name TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message (
		id BIGSERIAL PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
		creator_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_id, id)`,
	`CREATE TABLE IF NOT EXISTS free_talk_message (
		id BIGSERIAL PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_free_talk_creator ON free_talk_message (creator_id, created_ts)`,
	`CREATE TABLE IF NOT EXISTS document (
		id BIGSERIAL PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		generate_prompt TEXT NOT NULL DEFAULT '',
		doc_type_name TEXT NOT NULL DEFAULT '',
		conversation_id INTEGER NOT NULL DEFAULT 0,
		creator_id INTEGER NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS setting (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_setting (
		user_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		updated_ts BIGINT NOT NULL,
		PRIMARY KEY (user_id, key)
	)`,
	`CREATE OR REPLACE FUNCTION notify_setting_change() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + settingChannel + `', NEW.key);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS setting_change_trigger ON setting`,
	`CREATE TRIGGER setting_change_trigger
		AFTER INSERT OR UPDATE ON setting
		FOR EACH ROW EXECUTE FUNCTION notify_setting_change()`,
}

// WatchSettings pushes setting changes via PostgreSQL LISTEN/NOTIFY.
func (d *DB) WatchSettings(ctx context.Context) (<-chan store.SettingEvent, error) {
	listener := pq.NewListener(d.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("setting listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(settingChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "failed to listen on setting channel")
	}

	ch := make(chan store.SettingEvent, 16)
	go func() {
		defer close(ch)
		defer func() { _ = listener.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					// Connection was re-established; a change may have been
					// missed, so emit a wildcard event to force a refetch.
					select {
					case ch <- store.SettingEvent{Key: ""}:
					case <-ctx.Done():
						return
					}
					continue
				}
				select {
				case ch <- store.SettingEvent{Key: n.Extra}:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()

	return ch, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
