package media

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/hrygo/picsave/store"
)

var (
	// ErrConcurrentSubmission means another request inserted the same media
	// between the existence check and the insert. It is not retried.
	ErrConcurrentSubmission = errors.New("media was saved by a concurrent request")
	// ErrInvalidCursor is returned for a page cursor that is not a non-negative number.
	ErrInvalidCursor = errors.New("invalid page cursor")
	// ErrNotRefetchable is returned by a Fetcher that cannot download a record's media.
	ErrNotRefetchable = errors.New("media cannot be fetched again")
	// ErrReindexRunning is returned when a re-index sweep is already in progress.
	ErrReindexRunning = errors.New("reindex already running")
)

// Service is the media indexing and retrieval core.
type Service interface {
	// Ingest saves media the owner has not saved yet and removes it otherwise.
	Ingest(ctx context.Context, submission *Submission) (*IngestResult, error)

	// Search returns one page of the owner's media for a possibly empty query.
	Search(ctx context.Context, query *Query) (*Page, error)

	// Select reports that the owner picked a search result.
	// It returns whether an owned record was updated.
	Select(ctx context.Context, selection *Selection) (bool, error)

	// Reindex recomputes every stored embedding. Per-record failures are
	// collected in the report; only a failure to list records aborts the sweep.
	Reindex(ctx context.Context) (*ReindexReport, error)
}

// Store is the subset of the record store the service needs.
type Store interface {
	UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error)
	GetMediaRecord(ctx context.Context, find *store.FindMediaRecord) (*store.MediaRecord, error)
	CreateMediaRecord(ctx context.Context, create *store.MediaRecord) (*store.MediaRecord, error)
	DeleteMediaRecord(ctx context.Context, delete *store.DeleteMediaRecord) (bool, error)
	IncrementMediaUses(ctx context.Context, increment *store.IncrementMediaUses) (bool, error)
	UpdateMediaEmbedding(ctx context.Context, update *store.UpdateMediaEmbedding) error
	SearchMediaBySimilarity(ctx context.Context, ownerID int64, vector []float32, metric store.DistanceMetric, page store.Page) ([]*store.MediaSummary, error)
	SearchMediaByPopularity(ctx context.Context, ownerID int64, page store.Page) ([]*store.MediaSummary, error)
	SearchMediaByRecency(ctx context.Context, ownerID int64, page store.Page) ([]*store.MediaSummary, error)
	ListAllMediaRecords(ctx context.Context) iter.Seq2[*store.MediaSummary, error]
}

// Embedder computes vectors for media and text.
type Embedder interface {
	EmbedMedia(ctx context.Context, blobs [][]byte) ([][]float32, error)
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

// Fetcher downloads the bytes behind a record's content reference.
type Fetcher interface {
	FetchMedia(ctx context.Context, summary *store.MediaSummary) ([]byte, error)
}

// Submission is a "media submitted" event.
type Submission struct {
	OwnerID     int64
	Fingerprint string
	ContentRef  string
	Kind        store.MediaKind
	// Data holds the media bytes. When empty they are loaded only if the
	// media is about to be saved: through Load when set, otherwise through
	// the Fetcher by ContentRef.
	Data []byte
	Load func(ctx context.Context) ([]byte, error)
}

// Outcome is the result of the save/remove toggle.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// IngestResult reports which way the toggle went.
type IngestResult struct {
	Outcome Outcome
	// RecordID is set when Outcome is OutcomeSaved.
	RecordID int64
}

// Query is a "search" event. Offset is the cursor echoed back from the
// previous page, empty for the first page.
type Query struct {
	OwnerID int64
	Text    string
	Offset  string
}

// Page is one page of results.
type Page struct {
	Results []*store.MediaSummary
	// NextOffset is empty on the last page.
	NextOffset string
	// NoMatches is set when the first page is empty, so callers can show an
	// empty state instead of silently ending pagination.
	NoMatches bool
	Mode      store.MediaOrder
}

// Selection is a "result selected" event. ResultID is the record id as
// rendered to the platform.
type Selection struct {
	OwnerID  int64
	ResultID string
}

// ReindexFailure is one record the sweep could not re-embed.
type ReindexFailure struct {
	RecordID int64
	Err      error
}

// ReindexReport summarizes one re-index sweep.
type ReindexReport struct {
	RunID     string
	Total     int
	Reindexed int
	Skipped   int
	Failures  []ReindexFailure
	Duration  time.Duration
}
