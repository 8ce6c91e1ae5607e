package store

import (
	"context"
	"iter"
	"time"

	"github.com/pkg/errors"
)

// MediaKind is the closed set of media variants a record can hold.
// New variants are appended; existing values are never renumbered.
type MediaKind string

const (
	MediaKindPhoto   MediaKind = "photo"
	MediaKindSticker MediaKind = "sticker"
	MediaKindVideo   MediaKind = "video"
)

// IsValid reports whether k is a known media kind.
func (k MediaKind) IsValid() bool {
	switch k {
	case MediaKindPhoto, MediaKindSticker, MediaKindVideo:
		return true
	default:
		return false
	}
}

// ParseMediaKind converts a stored or user supplied name to a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(s)
	if !k.IsValid() {
		return "", errors.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// DistanceMetric selects the vector comparison used by similarity search.
type DistanceMetric string

const (
	DistanceCosine    DistanceMetric = "cosine"
	DistanceEuclidean DistanceMetric = "euclidean"
)

// MediaOrder selects how a search ranks candidate records.
type MediaOrder int

const (
	// OrderSimilarity ranks by ascending distance to a query vector.
	OrderSimilarity MediaOrder = iota
	// OrderPopularity ranks by uses_count desc, then created_at desc.
	OrderPopularity
	// OrderRecency ranks by created_at desc.
	OrderRecency
)

func (o MediaOrder) String() string {
	switch o {
	case OrderSimilarity:
		return "similarity"
	case OrderPopularity:
		return "popularity"
	case OrderRecency:
		return "recency"
	default:
		return "unknown"
	}
}

// MediaRecord is one saved piece of media owned by a single user.
type MediaRecord struct {
	ID          int64
	OwnerID     int64
	ContentRef  string // platform handle used to re-deliver and re-download
	Fingerprint string // stable identity shared by every delivery of the same media
	Embedding   []float32
	Kind        MediaKind
	UsesCount   int32
	CreatedAt   time.Time
}

// MediaSummary is what searches return; embeddings never leave the store.
type MediaSummary struct {
	ID         int64
	ContentRef string
	Kind       MediaKind
}

type FindMediaRecord struct {
	OwnerID     int64
	Fingerprint string
}

type DeleteMediaRecord struct {
	OwnerID     int64
	Fingerprint string
}

type IncrementMediaUses struct {
	ID      int64
	OwnerID int64
}

type UpdateMediaEmbedding struct {
	ID        int64
	Embedding []float32
}

// MediaSearchOptions is the driver level query for every ranking mode.
// Limit rows are returned starting at Offset; callers over-fetch by one to
// detect whether another page exists.
type MediaSearchOptions struct {
	OwnerID int64
	Order   MediaOrder
	Metric  DistanceMetric
	Vector  []float32 // required for OrderSimilarity
	Limit   int
	Offset  int
}

// Validate validates the MediaSearchOptions.
func (o *MediaSearchOptions) Validate() error {
	if o.Limit <= 0 {
		return errors.Errorf("limit must be positive: %d", o.Limit)
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	if o.Offset < 0 {
		return errors.Errorf("offset cannot be negative: %d", o.Offset)
	}
	switch o.Order {
	case OrderSimilarity:
		if len(o.Vector) == 0 {
			return errors.New("vector cannot be empty")
		}
		switch o.Metric {
		case DistanceCosine, DistanceEuclidean:
		case "":
			o.Metric = DistanceCosine
		default:
			return errors.Errorf("unsupported distance metric %q", o.Metric)
		}
	case OrderPopularity, OrderRecency:
	default:
		return errors.Errorf("unsupported order %d", o.Order)
	}
	return nil
}

// Page is the cursor a caller passes into the search helpers.
type Page struct {
	Limit  int
	Offset int
}

func (s *Store) validateEmbedding(embedding []float32) error {
	if len(embedding) != s.embeddingDim() {
		return errors.Errorf("invalid embedding dimension: got %d, want %d", len(embedding), s.embeddingDim())
	}
	return nil
}

// CreateMediaRecord inserts a new record. It returns ErrConflict when the
// owner already has a record with the same fingerprint.
func (s *Store) CreateMediaRecord(ctx context.Context, create *MediaRecord) (*MediaRecord, error) {
	if create.OwnerID == 0 {
		return nil, errors.New("owner id required")
	}
	if create.Fingerprint == "" || create.ContentRef == "" {
		return nil, errors.New("fingerprint and content ref required")
	}
	if !create.Kind.IsValid() {
		return nil, errors.Errorf("unknown media kind %q", create.Kind)
	}
	if err := s.validateEmbedding(create.Embedding); err != nil {
		return nil, err
	}
	return s.driver.CreateMediaRecord(ctx, create)
}

// GetMediaRecord returns the owner's record with the fingerprint, or nil.
func (s *Store) GetMediaRecord(ctx context.Context, find *FindMediaRecord) (*MediaRecord, error) {
	return s.driver.GetMediaRecord(ctx, find)
}

// DeleteMediaRecord removes the owner's record with the fingerprint and
// reports whether a row was removed.
func (s *Store) DeleteMediaRecord(ctx context.Context, delete *DeleteMediaRecord) (bool, error) {
	return s.driver.DeleteMediaRecord(ctx, delete)
}

// IncrementMediaUses adds one to the record's usage counter. A record that
// does not exist or belongs to someone else is left alone and false is returned.
func (s *Store) IncrementMediaUses(ctx context.Context, increment *IncrementMediaUses) (bool, error) {
	return s.driver.IncrementMediaUses(ctx, increment)
}

// UpdateMediaEmbedding replaces a record's embedding.
func (s *Store) UpdateMediaEmbedding(ctx context.Context, update *UpdateMediaEmbedding) error {
	if err := s.validateEmbedding(update.Embedding); err != nil {
		return err
	}
	return s.driver.UpdateMediaEmbedding(ctx, update)
}

// SearchMediaBySimilarity ranks the owner's records by distance to vector.
func (s *Store) SearchMediaBySimilarity(ctx context.Context, ownerID int64, vector []float32, metric DistanceMetric, page Page) ([]*MediaSummary, error) {
	if err := s.validateEmbedding(vector); err != nil {
		return nil, err
	}
	return s.searchMedia(ctx, &MediaSearchOptions{
		OwnerID: ownerID,
		Order:   OrderSimilarity,
		Metric:  metric,
		Vector:  vector,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// SearchMediaByPopularity ranks the owner's records by usage, newest first on ties.
func (s *Store) SearchMediaByPopularity(ctx context.Context, ownerID int64, page Page) ([]*MediaSummary, error) {
	return s.searchMedia(ctx, &MediaSearchOptions{
		OwnerID: ownerID,
		Order:   OrderPopularity,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// SearchMediaByRecency ranks the owner's records newest first.
func (s *Store) SearchMediaByRecency(ctx context.Context, ownerID int64, page Page) ([]*MediaSummary, error) {
	return s.searchMedia(ctx, &MediaSearchOptions{
		OwnerID: ownerID,
		Order:   OrderRecency,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (s *Store) searchMedia(ctx context.Context, opts *MediaSearchOptions) ([]*MediaSummary, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid search options")
	}
	return s.driver.SearchMediaRecords(ctx, opts)
}

// ListAllMediaRecords yields every record of every owner. Records are read
// in batches, so the caller may write to the store while iterating. Each
// call starts over from the first record.
func (s *Store) ListAllMediaRecords(ctx context.Context) iter.Seq2[*MediaSummary, error] {
	return s.driver.ListAllMediaRecords(ctx, listBatchSize)
}

const listBatchSize = 100
