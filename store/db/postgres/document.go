package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/store"
)

func (d *DB) CreateDocument(ctx context.Context, create *store.CreateDocument) (*store.Document, error) {
	fields := []string{"uid", "title", "content", "generate_prompt", "doc_type_name", "conversation_id", "creator_id", "created_ts", "updated_ts"}
	args := []any{create.UID, create.Title, create.Content, create.GeneratePrompt, create.DocTypeName, create.ConversationID, create.CreatorID, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO document (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	doc := &store.Document{
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
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&doc.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}

	return doc, nil
}

func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
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
		SELECT id, uid, title, content, generate_prompt, doc_type_name, conversation_id, creator_id, created_ts, updated_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := make([]*store.Document, 0)
	for rows.Next() {
		doc := &store.Document{}
		if err := rows.Scan(&doc.ID, &doc.UID, &doc.Title, &doc.Content, &doc.GeneratePrompt, &doc.DocTypeName, &doc.ConversationID, &doc.CreatorID, &doc.CreatedTs, &doc.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		list = append(list, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate documents")
	}

	return list, nil
}

func (d *DB) UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE document SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, title, content, generate_prompt, doc_type_name, conversation_id, creator_id, created_ts, updated_ts`
	result := &store.Document{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.Title, &result.Content, &result.GeneratePrompt, &result.DocTypeName, &result.ConversationID, &result.CreatorID, &result.CreatedTs, &result.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("document not found")
		}
		return nil, errors.Wrap(err, "failed to update document")
	}

	return result, nil
}

func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM document WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("document not found")
	}

	return nil
}
