package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	fields := []string{"uid", "conversation_id", "creator_id", "role", "content", "model_id", "created_ts"}
	args := []any{create.UID, create.ConversationID, create.CreatorID, create.Role, create.Content, create.ModelID, create.CreatedTs}

	// ON CONFLICT on the uid idempotency key: a retried insert whose first
	// attempt actually reached the server resolves to the existing row
	// instead of duplicating it.
	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (uid) DO UPDATE SET content = EXCLUDED.content
		RETURNING id`

	message := &store.Message{
		UID:            create.UID,
		ConversationID: create.ConversationID,
		CreatorID:      create.CreatorID,
		Role:           create.Role,
		Content:        create.Content,
		ModelID:        create.ModelID,
		CreatedTs:      create.CreatedTs,
	}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&message.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}

	return message, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}

	query := `
		SELECT id, uid, conversation_id, creator_id, role, content, model_id, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.CreatorID, &m.Role, &m.Content, &m.ModelID, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}

	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	set, args := []string{}, []any{}

	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.ModelID != nil {
		set, args = append(set, "model_id = "+placeholder(len(args)+1)), append(args, *update.ModelID)
	}
	if update.CreatedTs != nil {
		set, args = append(set, "created_ts = "+placeholder(len(args)+1)), append(args, *update.CreatedTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE message SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, conversation_id, creator_id, role, content, model_id, created_ts`
	result := &store.Message{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.ConversationID, &result.CreatorID, &result.Role, &result.Content, &result.ModelID, &result.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("message not found")
		}
		return nil, errors.Wrap(err, "failed to update message")
	}

	return result, nil
}

func (d *DB) CreateFreeTalkMessage(ctx context.Context, create *store.CreateFreeTalkMessage) (*store.FreeTalkMessage, error) {
	fields := []string{"uid", "creator_id", "role", "content", "model_id", "created_ts"}
	args := []any{create.UID, create.CreatorID, create.Role, create.Content, create.ModelID, create.CreatedTs}

	stmt := `INSERT INTO free_talk_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (uid) DO UPDATE SET content = EXCLUDED.content
		RETURNING id`

	message := &store.FreeTalkMessage{
		UID:       create.UID,
		CreatorID: create.CreatorID,
		Role:      create.Role,
		Content:   create.Content,
		ModelID:   create.ModelID,
		CreatedTs: create.CreatedTs,
	}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&message.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create free talk message")
	}

	return message, nil
}

func (d *DB) ListFreeTalkMessages(ctx context.Context, find *store.FindFreeTalkMessage) ([]*store.FreeTalkMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}
	if find.SinceTs != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *find.SinceTs)
	}

	query := `
		SELECT id, uid, creator_id, role, content, model_id, created_ts
		FROM free_talk_message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list free talk messages")
	}
	defer rows.Close()

	list := make([]*store.FreeTalkMessage, 0)
	for rows.Next() {
		m := &store.FreeTalkMessage{}
		if err := rows.Scan(&m.ID, &m.UID, &m.CreatorID, &m.Role, &m.Content, &m.ModelID, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan free talk message")
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate free talk messages")
	}

	return list, nil
}
