package postgres

import (
	"context"
	"database/sql"
	"iter"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateMediaRecord inserts a media record and fills in its generated fields.
func (d *DB) CreateMediaRecord(ctx context.Context, create *store.MediaRecord) (*store.MediaRecord, error) {
	stmt := `
		INSERT INTO media_record (owner_id, content_ref, fingerprint, embedding, kind)
		VALUES (` + placeholders(5) + `)
		RETURNING id, created_at, uses_count
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.OwnerID,
		create.ContentRef,
		create.Fingerprint,
		pgvector.NewVector(create.Embedding),
		string(create.Kind),
	).Scan(&create.ID, &create.CreatedAt, &create.UsesCount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(store.ErrConflict, "owner %d fingerprint %s", create.OwnerID, create.Fingerprint)
		}
		return nil, errors.Wrap(err, "failed to create media record")
	}
	return create, nil
}

// GetMediaRecord returns nil when the owner has no record with the fingerprint.
func (d *DB) GetMediaRecord(ctx context.Context, find *store.FindMediaRecord) (*store.MediaRecord, error) {
	query := `
		SELECT id, owner_id, content_ref, fingerprint, embedding, kind, uses_count, created_at
		FROM media_record
		WHERE owner_id = ` + placeholder(1) + ` AND fingerprint = ` + placeholder(2)

	var record store.MediaRecord
	var vector pgvector.Vector
	var kind string
	err := d.db.QueryRowContext(ctx, query, find.OwnerID, find.Fingerprint).Scan(
		&record.ID,
		&record.OwnerID,
		&record.ContentRef,
		&record.Fingerprint,
		&vector,
		&kind,
		&record.UsesCount,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get media record")
	}
	record.Embedding = vector.Slice()
	record.Kind = store.MediaKind(kind)
	return &record, nil
}

func (d *DB) DeleteMediaRecord(ctx context.Context, delete *store.DeleteMediaRecord) (bool, error) {
	stmt := `DELETE FROM media_record WHERE owner_id = ` + placeholder(1) + ` AND fingerprint = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, delete.OwnerID, delete.Fingerprint)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete media record")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return rows > 0, nil
}

func (d *DB) IncrementMediaUses(ctx context.Context, increment *store.IncrementMediaUses) (bool, error) {
	stmt := `UPDATE media_record SET uses_count = uses_count + 1 WHERE id = ` + placeholder(1) + ` AND owner_id = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, increment.ID, increment.OwnerID)
	if err != nil {
		return false, errors.Wrap(err, "failed to increment media uses")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return rows > 0, nil
}

func (d *DB) UpdateMediaEmbedding(ctx context.Context, update *store.UpdateMediaEmbedding) error {
	stmt := `UPDATE media_record SET embedding = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, pgvector.NewVector(update.Embedding), update.ID); err != nil {
		return errors.Wrap(err, "failed to update media embedding")
	}
	return nil
}

// distanceOperator maps a metric to its pgvector operator.
func distanceOperator(metric store.DistanceMetric) string {
	if metric == store.DistanceEuclidean {
		return "<->"
	}
	return "<=>"
}

// buildSearchQuery returns the ranked query for opts and its arguments.
func buildSearchQuery(opts *store.MediaSearchOptions) (string, []any) {
	args := []any{opts.OwnerID}
	var orderBy string
	switch opts.Order {
	case store.OrderSimilarity:
		args = append(args, pgvector.NewVector(opts.Vector))
		orderBy = "embedding " + distanceOperator(opts.Metric) + " " + placeholder(len(args)) + ", id"
	case store.OrderRecency:
		orderBy = "created_at DESC, id DESC"
	default:
		orderBy = "uses_count DESC, created_at DESC, id DESC"
	}
	args = append(args, opts.Limit, opts.Offset)

	query := `
		SELECT id, content_ref, kind
		FROM media_record
		WHERE owner_id = ` + placeholder(1) + `
		ORDER BY ` + orderBy + `
		LIMIT ` + placeholder(len(args)-1) + ` OFFSET ` + placeholder(len(args))
	return query, args
}

func (d *DB) SearchMediaRecords(ctx context.Context, opts *store.MediaSearchOptions) ([]*store.MediaSummary, error) {
	query, args := buildSearchQuery(opts)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search media by %s", opts.Order)
	}
	defer rows.Close()

	list := []*store.MediaSummary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func scanSummary(rows *sql.Rows) (*store.MediaSummary, error) {
	var summary store.MediaSummary
	var kind string
	if err := rows.Scan(&summary.ID, &summary.ContentRef, &kind); err != nil {
		return nil, errors.Wrap(err, "failed to scan media summary")
	}
	summary.Kind = store.MediaKind(kind)
	return &summary, nil
}

// ListAllMediaRecords walks the table in id order, one batch per query.
func (d *DB) ListAllMediaRecords(ctx context.Context, batchSize int) iter.Seq2[*store.MediaSummary, error] {
	return func(yield func(*store.MediaSummary, error) bool) {
		var after int64
		for {
			batch, err := d.listBatch(ctx, after, batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, summary := range batch {
				if !yield(summary, nil) {
					return
				}
			}
			if len(batch) < batchSize {
				return
			}
			after = batch[len(batch)-1].ID
		}
	}
}

func (d *DB) listBatch(ctx context.Context, after int64, limit int) ([]*store.MediaSummary, error) {
	query := `
		SELECT id, content_ref, kind
		FROM media_record
		WHERE id > ` + placeholder(1) + `
		ORDER BY id
		LIMIT ` + placeholder(2)
	rows, err := d.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list media records")
	}
	defer rows.Close()

	list := []*store.MediaSummary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
