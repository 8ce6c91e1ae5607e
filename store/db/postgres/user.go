package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error) {
	stmt := `
		INSERT INTO users (id, last_activity)
		VALUES (` + placeholders(2) + `)
		ON CONFLICT (id) DO UPDATE SET last_activity = EXCLUDED.last_activity
		RETURNING id, last_activity
	`
	user := &store.User{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.ID, upsert.At).Scan(&user.ID, &user.LastActivity); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user")
	}
	return user, nil
}
