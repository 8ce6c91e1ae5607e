package media

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/picsave/store"
)

// Search plans and runs one page of retrieval.
//
// A blank query ranks by the configured empty-query order. Otherwise the text
// is translated, embedded and ranked by distance. One extra row is fetched to
// learn whether a further page exists without counting.
func (s *MediaService) Search(ctx context.Context, q *Query) (*Page, error) {
	if q == nil || q.OwnerID == 0 {
		return nil, errors.New("owner id is required")
	}
	offset, err := ParseCursor(q.Offset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	page := store.Page{Limit: s.cfg.PageSize + 1, Offset: offset}
	text := strings.TrimSpace(q.Text)

	mode := s.cfg.EmptyQueryOrder
	var rows []*store.MediaSummary
	if text == "" {
		rows, err = s.searchEmpty(ctx, q.OwnerID, page)
	} else {
		mode = store.OrderSimilarity
		rows, err = s.searchText(ctx, q.OwnerID, text, page)
	}
	s.metrics.RecordSearch(mode.String(), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	s.touchUser(ctx, q.OwnerID)

	result := &Page{Mode: mode}
	if len(rows) > s.cfg.PageSize {
		rows = rows[:s.cfg.PageSize]
		result.NextOffset = strconv.Itoa(offset + s.cfg.PageSize)
	}
	result.Results = rows
	result.NoMatches = len(rows) == 0 && offset == 0
	return result, nil
}

func (s *MediaService) searchEmpty(ctx context.Context, ownerID int64, page store.Page) ([]*store.MediaSummary, error) {
	var rows []*store.MediaSummary
	var err error
	if s.cfg.EmptyQueryOrder == store.OrderRecency {
		rows, err = s.store.SearchMediaByRecency(ctx, ownerID, page)
	} else {
		rows, err = s.store.SearchMediaByPopularity(ctx, ownerID, page)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list media")
	}
	return rows, nil
}

func (s *MediaService) searchText(ctx context.Context, ownerID int64, text string, page store.Page) ([]*store.MediaSummary, error) {
	translated, err := s.translator.Translate(ctx, []string{text}, s.cfg.SourceLang, s.cfg.TargetLang)
	if err != nil {
		return nil, errors.Wrap(err, "failed to translate query")
	}
	if len(translated) == 1 && strings.TrimSpace(translated[0]) != "" {
		text = translated[0]
	}

	vectors, err := s.embedder.EmbedText(ctx, []string{text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	rows, err := s.store.SearchMediaBySimilarity(ctx, ownerID, vectors[0], s.cfg.Metric, page)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search media")
	}
	return rows, nil
}

// Select counts a chosen result towards its record's popularity. A result id
// that does not parse or does not belong to the owner is ignored.
func (s *MediaService) Select(ctx context.Context, sel *Selection) (bool, error) {
	if sel == nil || sel.OwnerID == 0 {
		return false, errors.New("owner id is required")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sel.ResultID), 10, 64)
	if err != nil || id <= 0 {
		s.metrics.RecordSelection(false)
		return false, nil
	}

	updated, err := s.store.IncrementMediaUses(ctx, &store.IncrementMediaUses{ID: id, OwnerID: sel.OwnerID})
	if err != nil {
		return false, errors.Wrap(err, "failed to increment uses")
	}
	s.metrics.RecordSelection(updated)
	s.touchUser(ctx, sel.OwnerID)
	return updated, nil
}

// ParseCursor converts a page cursor to an offset. An empty cursor is the
// first page.
func ParseCursor(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, errors.Wrapf(ErrInvalidCursor, "%q", cursor)
	}
	return offset, nil
}
