// Package media implements saving, searching and re-indexing a user's media
// independently of the chat platform that delivers the events.
package media

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/picsave/ai/metrics"
	"github.com/hrygo/picsave/ai/translate"
	"github.com/hrygo/picsave/store"
)

const defaultPageSize = 50

// Config tunes retrieval.
type Config struct {
	PageSize int
	Metric   store.DistanceMetric
	// EmptyQueryOrder ranks results when the query text is blank.
	// Only OrderPopularity and OrderRecency are accepted.
	EmptyQueryOrder store.MediaOrder
	SourceLang      string
	TargetLang      string
}

// MediaService is the default Service.
type MediaService struct {
	store      Store
	embedder   Embedder
	translator translate.Translator
	fetcher    Fetcher
	metrics    *metrics.PrometheusExporter
	cfg        Config

	locks      *ownerLocks
	reindexing atomic.Bool
}

var _ Service = (*MediaService)(nil)

// NewService wires the core. fetcher may be nil when every submission carries
// its bytes; Reindex then fails. translator may be nil to search untranslated.
func NewService(s Store, embedder Embedder, translator translate.Translator, fetcher Fetcher, m *metrics.PrometheusExporter, cfg Config) (*MediaService, error) {
	if s == nil || embedder == nil {
		return nil, errors.New("media service requires a store and an embedder")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Metric == "" {
		cfg.Metric = store.DistanceCosine
	}
	switch cfg.EmptyQueryOrder {
	case store.OrderPopularity, store.OrderRecency:
	case store.OrderSimilarity:
		// Zero value; blank queries have no vector to rank by.
		cfg.EmptyQueryOrder = store.OrderPopularity
	default:
		return nil, errors.Errorf("unsupported empty query order %d", cfg.EmptyQueryOrder)
	}
	if translator == nil {
		translator = translate.Identity{}
	}
	return &MediaService{
		store:      s,
		embedder:   embedder,
		translator: translator,
		fetcher:    fetcher,
		metrics:    m,
		cfg:        cfg,
		locks:      newOwnerLocks(),
	}, nil
}

// PageSize returns the effective page size.
func (s *MediaService) PageSize() int {
	return s.cfg.PageSize
}

// touchUser records activity for the owner. A failure is logged and does not
// fail the caller's request.
func (s *MediaService) touchUser(ctx context.Context, ownerID int64) {
	if _, err := s.store.UpsertUser(ctx, &store.UpsertUser{ID: ownerID, At: time.Now().UTC()}); err != nil {
		slog.Warn("failed to update user activity", "owner_id", ownerID, "error", err)
	}
}
