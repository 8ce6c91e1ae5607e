package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error) {
	stmt := `
		INSERT INTO users (id, last_activity) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET last_activity = excluded.last_activity
		RETURNING id, last_activity
	`
	var user store.User
	var lastActivity int64
	if err := d.db.QueryRowContext(ctx, stmt, upsert.ID, upsert.At.UnixMicro()).Scan(&user.ID, &lastActivity); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user")
	}
	user.LastActivity = time.UnixMicro(lastActivity).UTC()
	return &user, nil
}
