package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/picsave/internal/profile"
	"github.com/hrygo/picsave/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database with pgvector support.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) embeddingDim() int {
	if d.profile == nil || d.profile.EmbeddingDim <= 0 {
		return 1024
	}
	return d.profile.EmbeddingDim
}

// schema returns the idempotent DDL statements in execution order.
// ALTER TYPE ... ADD VALUE cannot run inside a transaction, so statements are
// executed one by one on the pool.
func schema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`DO $$ BEGIN
			CREATE TYPE media_kind AS ENUM ('photo', 'sticker');
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$`,
		`ALTER TYPE media_kind ADD VALUE IF NOT EXISTS 'video'`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS media_record (
			id BIGSERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL REFERENCES users(id),
			content_ref TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(%d) NOT NULL,
			kind media_kind NOT NULL DEFAULT 'photo',
			uses_count INTEGER NOT NULL DEFAULT 0
		)`, dim),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_media_record_owner_fingerprint ON media_record (owner_id, fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_media_record_owner_popularity ON media_record (owner_id, uses_count DESC, created_at DESC)`,
		// Similarity search is an exact scan over one owner's rows. An HNSW
		// index only yields ef_search candidates before the owner filter, which
		// would cut pages short.
		`DROP INDEX IF EXISTS idx_media_record_embedding_cosine`,
		`DROP INDEX IF EXISTS idx_media_record_embedding_l2`,
	}
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema(d.embeddingDim()) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to migrate: %s", firstLine(stmt))
		}
	}
	slog.Info("postgres schema is up to date", "embedding_dim", d.embeddingDim())
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
