package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/store"
)

func (d *DB) ListSettings(ctx context.Context, find *store.FindSetting) ([]*store.Setting, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Key != nil {
		where, args = append(where, "key = "+placeholder(len(args)+1)), append(args, *find.Key)
	}
	if find.KeyPrefix != nil {
		where, args = append(where, "key LIKE "+placeholder(len(args)+1)), append(args, *find.KeyPrefix+"%")
	}
	if len(find.Keys) > 0 {
		where, args = append(where, "key = ANY("+placeholder(len(args)+1)+")"), append(args, pq.Array(find.Keys))
	}

	query := `SELECT key, value, updated_ts FROM setting WHERE ` + strings.Join(where, " AND ") + ` ORDER BY key ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list settings")
	}
	defer rows.Close()

	list := make([]*store.Setting, 0)
	for rows.Next() {
		s := &store.Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan setting")
		}
		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate settings")
	}

	return list, nil
}

func (d *DB) UpsertSetting(ctx context.Context, upsert *store.UpsertSetting) (*store.Setting, error) {
	now := time.Now().UnixMilli()
	stmt := `INSERT INTO setting (key, value, updated_ts)
		VALUES (` + placeholders(3) + `)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_ts = EXCLUDED.updated_ts
		RETURNING key, value, updated_ts`
	setting := &store.Setting{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Key, upsert.Value, now).Scan(&setting.Key, &setting.Value, &setting.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert setting")
	}
	return setting, nil
}

func (d *DB) GetUserSetting(ctx context.Context, find *store.FindUserSetting) (*store.UserSetting, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Key != nil {
		where, args = append(where, "key = "+placeholder(len(args)+1)), append(args, *find.Key)
	}

	query := `SELECT user_id, key, value, updated_ts FROM user_setting WHERE ` + strings.Join(where, " AND ")
	setting := &store.UserSetting{}
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&setting.UserID, &setting.Key, &setting.Value, &setting.UpdatedTs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user setting")
	}
	return setting, nil
}

func (d *DB) UpsertUserSetting(ctx context.Context, upsert *store.UpsertUserSetting) (*store.UserSetting, error) {
	now := time.Now().UnixMilli()
	stmt := `INSERT INTO user_setting (user_id, key, value, updated_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_ts = EXCLUDED.updated_ts
		RETURNING user_id, key, value, updated_ts`
	setting := &store.UserSetting{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.Key, upsert.Value, now).Scan(&setting.UserID, &setting.Key, &setting.Value, &setting.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user setting")
	}
	return setting, nil
}
