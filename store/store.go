package store

import (
	"context"
	"errors"

	"github.com/hrygo/picsave/internal/profile"
)

// ErrConflict is returned when a record with the same (owner, fingerprint) already exists.
var ErrConflict = errors.New("media record already exists")

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

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) embeddingDim() int {
	if s.profile == nil || s.profile.EmbeddingDim <= 0 {
		return 1024
	}
	return s.profile.EmbeddingDim
}
