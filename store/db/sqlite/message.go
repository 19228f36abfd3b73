package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	// INSERT OR IGNORE on the uid idempotency key; a retried insert resolves
	// to the existing row instead of duplicating it.
	stmt := `INSERT OR IGNORE INTO message (uid, conversation_id, creator_id, role, content, model_id, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.ConversationID, create.CreatorID, create.Role, create.Content, create.ModelID, create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}

	message := &store.Message{
		UID:            create.UID,
		ConversationID: create.ConversationID,
		CreatorID:      create.CreatorID,
		Role:           create.Role,
		Content:        create.Content,
		ModelID:        create.ModelID,
		CreatedTs:      create.CreatedTs,
	}
	if err := d.db.QueryRowContext(ctx, `SELECT id FROM message WHERE uid = ?`, create.UID).Scan(&message.ID); err != nil {
		return nil, errors.Wrap(err, "failed to resolve message id")
	}
	return message, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = ?"), append(args, *find.CreatorID)
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
		set, args = append(set, "content = ?"), append(args, *update.Content)
	}
	if update.ModelID != nil {
		set, args = append(set, "model_id = ?"), append(args, *update.ModelID)
	}
	if update.CreatedTs != nil {
		set, args = append(set, "created_ts = ?"), append(args, *update.CreatedTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE message SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update message")
	}

	result := &store.Message{}
	err := d.db.QueryRowContext(ctx, `SELECT id, uid, conversation_id, creator_id, role, content, model_id, created_ts FROM message WHERE id = ?`, update.ID).Scan(
		&result.ID, &result.UID, &result.ConversationID, &result.CreatorID, &result.Role, &result.Content, &result.ModelID, &result.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("message not found")
		}
		return nil, errors.Wrap(err, "failed to read back message")
	}
	return result, nil
}

func (d *DB) CreateFreeTalkMessage(ctx context.Context, create *store.CreateFreeTalkMessage) (*store.FreeTalkMessage, error) {
	stmt := `INSERT OR IGNORE INTO free_talk_message (uid, creator_id, role, content, model_id, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.CreatorID, create.Role, create.Content, create.ModelID, create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create free talk message")
	}

	message := &store.FreeTalkMessage{
		UID:       create.UID,
		CreatorID: create.CreatorID,
		Role:      create.Role,
		Content:   create.Content,
		ModelID:   create.ModelID,
		CreatedTs: create.CreatedTs,
	}
	if err := d.db.QueryRowContext(ctx, `SELECT id FROM free_talk_message WHERE uid = ?`, create.UID).Scan(&message.ID); err != nil {
		return nil, errors.Wrap(err, "failed to resolve free talk message id")
	}
	return message, nil
}

func (d *DB) ListFreeTalkMessages(ctx context.Context, find *store.FindFreeTalkMessage) ([]*store.FreeTalkMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.CreatorID != nil {
		where, args = append(where, "creator_id = ?"), append(args, *find.CreatorID)
	}
	if find.SinceTs != nil {
		where, args = append(where, "created_ts >= ?"), append(args, *find.SinceTs)
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
