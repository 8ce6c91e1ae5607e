package store

import (
	"context"
	"database/sql"
	"iter"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// User model related methods.
	UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error)

	// MediaRecord model related methods.
	CreateMediaRecord(ctx context.Context, create *MediaRecord) (*MediaRecord, error)
	GetMediaRecord(ctx context.Context, find *FindMediaRecord) (*MediaRecord, error)
	DeleteMediaRecord(ctx context.Context, delete *DeleteMediaRecord) (bool, error)
	IncrementMediaUses(ctx context.Context, increment *IncrementMediaUses) (bool, error)
	UpdateMediaEmbedding(ctx context.Context, update *UpdateMediaEmbedding) error
	SearchMediaRecords(ctx context.Context, opts *MediaSearchOptions) ([]*MediaSummary, error)
	ListAllMediaRecords(ctx context.Context, batchSize int) iter.Seq2[*MediaSummary, error]
}
