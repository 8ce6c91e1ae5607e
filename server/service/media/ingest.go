package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

// Ingest toggles the submission in the owner's collection: media that is
// already saved is removed, anything else is embedded and saved.
//
// Check and persist run under a per-owner lock, so two submissions of the
// same media by one owner in this process cannot both save. A unique
// violation from another process surfaces as ErrConcurrentSubmission.
func (s *MediaService) Ingest(ctx context.Context, sub *Submission) (*IngestResult, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sub.OwnerID)
	defer unlock()

	// Records reference their owner, so the user row must exist first.
	if _, err := s.store.UpsertUser(ctx, &store.UpsertUser{ID: sub.OwnerID, At: time.Now().UTC()}); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user")
	}

	existing, err := s.store.GetMediaRecord(ctx, &store.FindMediaRecord{
		OwnerID:     sub.OwnerID,
		Fingerprint: sub.Fingerprint,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to check media record")
	}
	if existing != nil {
		return s.remove(ctx, sub)
	}
	return s.save(ctx, sub)
}

func (s *MediaService) remove(ctx context.Context, sub *Submission) (*IngestResult, error) {
	deleted, err := s.store.DeleteMediaRecord(ctx, &store.DeleteMediaRecord{
		OwnerID:     sub.OwnerID,
		Fingerprint: sub.Fingerprint,
	})
	if err != nil {
		s.metrics.RecordIngestion(string(sub.Kind), "error")
		return nil, errors.Wrap(err, "failed to delete media record")
	}
	if !deleted {
		// Removed elsewhere between check and delete; the end state is the same.
		slog.Debug("media record already gone", "owner_id", sub.OwnerID, "fingerprint", sub.Fingerprint)
	}
	s.metrics.RecordIngestion(string(sub.Kind), OutcomeRemoved.String())
	return &IngestResult{Outcome: OutcomeRemoved}, nil
}

func (s *MediaService) save(ctx context.Context, sub *Submission) (*IngestResult, error) {
	data, err := s.load(ctx, sub)
	if err != nil {
		s.metrics.RecordIngestion(string(sub.Kind), "error")
		return nil, errors.Wrap(err, "failed to fetch media")
	}

	vectors, err := s.embedder.EmbedMedia(ctx, [][]byte{data})
	if err != nil {
		s.metrics.RecordIngestion(string(sub.Kind), "error")
		return nil, errors.Wrap(err, "failed to embed media")
	}

	record, err := s.store.CreateMediaRecord(ctx, &store.MediaRecord{
		OwnerID:     sub.OwnerID,
		ContentRef:  sub.ContentRef,
		Fingerprint: sub.Fingerprint,
		Embedding:   vectors[0],
		Kind:        sub.Kind,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.RecordIngestion(string(sub.Kind), "conflict")
			return nil, errors.Wrapf(ErrConcurrentSubmission, "owner %d fingerprint %s", sub.OwnerID, sub.Fingerprint)
		}
		s.metrics.RecordIngestion(string(sub.Kind), "error")
		return nil, errors.Wrap(err, "failed to create media record")
	}

	slog.Debug("media saved", "owner_id", sub.OwnerID, "record_id", record.ID, "kind", sub.Kind)
	s.metrics.RecordIngestion(string(sub.Kind), OutcomeSaved.String())
	return &IngestResult{Outcome: OutcomeSaved, RecordID: record.ID}, nil
}

// load returns the submission's bytes, downloading them when the event
// carried none.
func (s *MediaService) load(ctx context.Context, sub *Submission) ([]byte, error) {
	switch {
	case len(sub.Data) > 0:
		return sub.Data, nil
	case sub.Load != nil:
		return sub.Load(ctx)
	case s.fetcher != nil:
		return s.fetcher.FetchMedia(ctx, &store.MediaSummary{ContentRef: sub.ContentRef, Kind: sub.Kind})
	default:
		return nil, errors.New("submission has no media bytes and no fetcher is configured")
	}
}

func validateSubmission(sub *Submission) error {
	switch {
	case sub == nil:
		return errors.New("submission is required")
	case sub.OwnerID == 0:
		return errors.New("owner id is required")
	case sub.Fingerprint == "":
		return errors.New("fingerprint is required")
	case sub.ContentRef == "":
		return errors.New("content ref is required")
	case !sub.Kind.IsValid():
		return errors.Errorf("unknown media kind %q", sub.Kind)
	}
	return nil
}
