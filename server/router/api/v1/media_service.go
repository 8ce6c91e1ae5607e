package v1

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/picsave/server/service/media"
	"github.com/hrygo/picsave/store"
)

type ingestResponse struct {
	Outcome string `json:"outcome"`
	ID      int64  `json:"id,omitempty"`
}

type mediaItem struct {
	ID         int64  `json:"id"`
	ContentRef string `json:"content_ref"`
	Kind       string `json:"kind"`
}

type searchResponse struct {
	Results    []mediaItem `json:"results"`
	NextOffset string      `json:"next_offset"`
	NoMatches  bool        `json:"no_matches"`
	Mode       string      `json:"mode"`
}

type selectResponse struct {
	Updated bool `json:"updated"`
}

type reindexResponse struct {
	RunID      string  `json:"run_id"`
	Total      int     `json:"total"`
	Reindexed  int     `json:"reindexed"`
	Skipped    int     `json:"skipped"`
	FailedIDs  []int64 `json:"failed_ids"`
	DurationMS int64   `json:"duration_ms"`
}

func ownerParam(c echo.Context) (int64, error) {
	owner, err := strconv.ParseInt(c.Param("owner"), 10, 64)
	if err != nil || owner == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid owner id")
	}
	return owner, nil
}

// IngestMedia toggles one piece of media in the owner's collection. The file
// part is optional when the service can fetch media by content_ref.
func (s *APIV1Service) IngestMedia(c echo.Context) error {
	owner, err := ownerParam(c)
	if err != nil {
		return err
	}
	kind, err := store.ParseMediaKind(c.FormValue("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub := &media.Submission{
		OwnerID:     owner,
		Fingerprint: strings.TrimSpace(c.FormValue("fingerprint")),
		ContentRef:  strings.TrimSpace(c.FormValue("content_ref")),
		Kind:        kind,
	}
	if sub.Fingerprint == "" || sub.ContentRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "fingerprint and content_ref are required")
	}

	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > s.MaxUploadBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
		}
		defer f.Close()
		if sub.Data, err = io.ReadAll(io.LimitReader(f, s.MaxUploadBytes)); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form").SetInternal(err)
	}

	result, err := s.Media.Ingest(c.Request().Context(), sub)
	if err != nil {
		return toHTTPError(err)
	}
	status := http.StatusCreated
	if result.Outcome == media.OutcomeRemoved {
		status = http.StatusOK
	}
	return c.JSON(status, ingestResponse{Outcome: result.Outcome.String(), ID: result.RecordID})
}

// SearchMedia returns one page of the owner's media for q, or by the
// empty-query order when q is blank.
func (s *APIV1Service) SearchMedia(c echo.Context) error {
	owner, err := ownerParam(c)
	if err != nil {
		return err
	}
	page, err := s.Media.Search(c.Request().Context(), &media.Query{
		OwnerID: owner,
		Text:    c.QueryParam("q"),
		Offset:  c.QueryParam("offset"),
	})
	if err != nil {
		return toHTTPError(err)
	}

	resp := searchResponse{
		Results:    make([]mediaItem, 0, len(page.Results)),
		NextOffset: page.NextOffset,
		NoMatches:  page.NoMatches,
		Mode:       page.Mode.String(),
	}
	for _, r := range page.Results {
		resp.Results = append(resp.Results, mediaItem{ID: r.ID, ContentRef: r.ContentRef, Kind: string(r.Kind)})
	}
	return c.JSON(http.StatusOK, resp)
}

// SelectMedia counts a use of the record.
func (s *APIV1Service) SelectMedia(c echo.Context) error {
	owner, err := ownerParam(c)
	if err != nil {
		return err
	}
	updated, err := s.Media.Select(c.Request().Context(), &media.Selection{OwnerID: owner, ResultID: c.Param("id")})
	if err != nil {
		return toHTTPError(err)
	}
	if !updated {
		return c.JSON(http.StatusNotFound, selectResponse{Updated: false})
	}
	return c.JSON(http.StatusOK, selectResponse{Updated: true})
}

// Reindex runs a full sweep synchronously and reports the outcome.
func (s *APIV1Service) Reindex(c echo.Context) error {
	report, err := s.Media.Reindex(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	resp := reindexResponse{
		RunID:      report.RunID,
		Total:      report.Total,
		Reindexed:  report.Reindexed,
		Skipped:    report.Skipped,
		FailedIDs:  make([]int64, 0, len(report.Failures)),
		DurationMS: report.Duration.Milliseconds(),
	}
	for _, f := range report.Failures {
		resp.FailedIDs = append(resp.FailedIDs, f.RecordID)
	}
	return c.JSON(http.StatusOK, resp)
}
