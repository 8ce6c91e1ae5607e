package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// User is a chat platform account known to the bot.
type User struct {
	ID           int64
	LastActivity time.Time
}

type UpsertUser struct {
	ID int64
	// At defaults to now.
	At time.Time
}

// UpsertUser creates the user on first contact and bumps its last activity afterwards.
func (s *Store) UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error) {
	if upsert.ID == 0 {
		return nil, errors.New("user id required")
	}
	if upsert.At.IsZero() {
		upsert.At = time.Now().UTC()
	}
	return s.driver.UpsertUser(ctx, upsert)
}
