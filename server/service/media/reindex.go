package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

// Reindex walks every record of every owner, downloads its media again and
// replaces the stored embedding. Only one sweep runs at a time.
func (s *MediaService) Reindex(ctx context.Context) (*ReindexReport, error) {
	if s.fetcher == nil {
		return nil, errors.New("reindex requires a media fetcher")
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, ErrReindexRunning
	}
	defer s.reindexing.Store(false)

	report := &ReindexReport{RunID: shortuuid.New()}
	start := time.Now()
	logger := slog.With("run_id", report.RunID)
	logger.Info("reindex started")

	for summary, err := range s.store.ListAllMediaRecords(ctx) {
		if err != nil {
			report.Duration = time.Since(start)
			logger.Error("reindex aborted", "error", err, "total", report.Total)
			return report, errors.Wrap(err, "failed to list media records")
		}
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		report.Total++
		err := s.reindexOne(ctx, summary)
		switch {
		case err == nil:
			report.Reindexed++
			s.metrics.RecordReindex(true)
		case errors.Is(err, ErrNotRefetchable):
			report.Skipped++
			logger.Debug("reindex skipped record", "record_id", summary.ID, "kind", summary.Kind)
		default:
			report.Failures = append(report.Failures, ReindexFailure{RecordID: summary.ID, Err: err})
			s.metrics.RecordReindex(false)
			logger.Warn("reindex failed for record", "record_id", summary.ID, "error", err)
		}
	}

	report.Duration = time.Since(start)
	logger.Info("reindex finished",
		"total", report.Total,
		"reindexed", report.Reindexed,
		"skipped", report.Skipped,
		"failed", len(report.Failures),
		"duration", report.Duration)
	return report, nil
}

func (s *MediaService) reindexOne(ctx context.Context, summary *store.MediaSummary) error {
	data, err := s.fetcher.FetchMedia(ctx, summary)
	if err != nil {
		return errors.Wrap(err, "fetch")
	}
	vectors, err := s.embedder.EmbedMedia(ctx, [][]byte{data})
	if err != nil {
		return errors.Wrap(err, "embed")
	}
	if err := s.store.UpdateMediaEmbedding(ctx, &store.UpdateMediaEmbedding{ID: summary.ID, Embedding: vectors[0]}); err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}
