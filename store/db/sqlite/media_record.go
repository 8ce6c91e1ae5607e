package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"iter"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hrygo/picsave/store"
)

// float32ArrayToBLOB encodes a vector as little-endian float32s.
func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (d *DB) CreateMediaRecord(ctx context.Context, create *store.MediaRecord) (*store.MediaRecord, error) {
	stmt := `
		INSERT INTO media_record (owner_id, content_ref, fingerprint, created_at, embedding, kind)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, uses_count
	`
	createdAt := time.Now().UTC()
	err := d.db.QueryRowContext(ctx, stmt,
		create.OwnerID,
		create.ContentRef,
		create.Fingerprint,
		createdAt.UnixMicro(),
		float32ArrayToBLOB(create.Embedding),
		string(create.Kind),
	).Scan(&create.ID, &create.UsesCount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(store.ErrConflict, "owner %d fingerprint %s", create.OwnerID, create.Fingerprint)
		}
		return nil, errors.Wrap(err, "failed to create media record")
	}
	create.CreatedAt = time.UnixMicro(createdAt.UnixMicro()).UTC()
	return create, nil
}

func (d *DB) GetMediaRecord(ctx context.Context, find *store.FindMediaRecord) (*store.MediaRecord, error) {
	query := `
		SELECT id, owner_id, content_ref, fingerprint, embedding, kind, uses_count, created_at
		FROM media_record
		WHERE owner_id = ? AND fingerprint = ?
	`
	var record store.MediaRecord
	var blob []byte
	var kind string
	var createdAt int64
	err := d.db.QueryRowContext(ctx, query, find.OwnerID, find.Fingerprint).Scan(
		&record.ID,
		&record.OwnerID,
		&record.ContentRef,
		&record.Fingerprint,
		&blob,
		&kind,
		&record.UsesCount,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get media record")
	}
	if record.Embedding, err = blobToFloat32Array(blob); err != nil {
		return nil, err
	}
	record.Kind = store.MediaKind(kind)
	record.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &record, nil
}

func (d *DB) DeleteMediaRecord(ctx context.Context, delete *store.DeleteMediaRecord) (bool, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM media_record WHERE owner_id = ? AND fingerprint = ?`, delete.OwnerID, delete.Fingerprint)
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
	result, err := d.db.ExecContext(ctx, `UPDATE media_record SET uses_count = uses_count + 1 WHERE id = ? AND owner_id = ?`, increment.ID, increment.OwnerID)
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
	if _, err := d.db.ExecContext(ctx, `UPDATE media_record SET embedding = ? WHERE id = ?`, float32ArrayToBLOB(update.Embedding), update.ID); err != nil {
		return errors.Wrap(err, "failed to update media embedding")
	}
	return nil
}

func (d *DB) SearchMediaRecords(ctx context.Context, opts *store.MediaSearchOptions) ([]*store.MediaSummary, error) {
	if opts.Order == store.OrderSimilarity {
		return d.searchBySimilarity(ctx, opts)
	}

	orderBy := "uses_count DESC, created_at DESC, id DESC"
	if opts.Order == store.OrderRecency {
		orderBy = "created_at DESC, id DESC"
	}
	query := `
		SELECT id, content_ref, kind
		FROM media_record
		WHERE owner_id = ?
		ORDER BY ` + orderBy + `
		LIMIT ? OFFSET ?
	`
	rows, err := d.db.QueryContext(ctx, query, opts.OwnerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search media by %s", opts.Order)
	}
	defer rows.Close()

	list := []*store.MediaSummary{}
	for rows.Next() {
		var summary store.MediaSummary
		var kind string
		if err := rows.Scan(&summary.ID, &summary.ContentRef, &kind); err != nil {
			return nil, errors.Wrap(err, "failed to scan media summary")
		}
		summary.Kind = store.MediaKind(kind)
		list = append(list, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type scoredSummary struct {
	summary  *store.MediaSummary
	distance float64
}

// searchBySimilarity loads the owner's vectors and ranks them in process.
func (d *DB) searchBySimilarity(ctx context.Context, opts *store.MediaSearchOptions) ([]*store.MediaSummary, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, content_ref, kind, embedding FROM media_record WHERE owner_id = ?`, opts.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search media by similarity")
	}
	defer rows.Close()

	scored := []scoredSummary{}
	for rows.Next() {
		var summary store.MediaSummary
		var kind string
		var blob []byte
		if err := rows.Scan(&summary.ID, &summary.ContentRef, &kind, &blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan media record")
		}
		vec, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, err
		}
		summary.Kind = store.MediaKind(kind)
		scored = append(scored, scoredSummary{summary: &summary, distance: distance(opts.Metric, opts.Vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].summary.ID < scored[j].summary.ID
	})

	list := []*store.MediaSummary{}
	for i := opts.Offset; i < len(scored) && len(list) < opts.Limit; i++ {
		list = append(list, scored[i].summary)
	}
	return list, nil
}

// distance mirrors pgvector: cosine distance is 1 - cos(a, b), euclidean is L2.
// Vectors of different length are treated as maximally distant.
func distance(metric store.DistanceMetric, a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	if metric == store.DistanceEuclidean {
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return math.Sqrt(sum)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

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

// listBatch drains its rows before returning so the single connection is
// free for writes made by the caller between batches.
func (d *DB) listBatch(ctx context.Context, after int64, limit int) ([]*store.MediaSummary, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, content_ref, kind FROM media_record WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list media records")
	}
	defer rows.Close()

	list := []*store.MediaSummary{}
	for rows.Next() {
		var summary store.MediaSummary
		var kind string
		if err := rows.Scan(&summary.ID, &summary.ContentRef, &kind); err != nil {
			return nil, errors.Wrap(err, "failed to scan media summary")
		}
		summary.Kind = store.MediaKind(kind)
		list = append(list, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
