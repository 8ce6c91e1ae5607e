package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/picsave/ai/embedding"
	"github.com/hrygo/picsave/ai/translate"
	"github.com/hrygo/picsave/server/auth"
	"github.com/hrygo/picsave/server/service/media"
)

// DefaultMaxUploadBytes bounds multipart uploads to the ingest endpoint.
const DefaultMaxUploadBytes = 20 << 20

type APIV1Service struct {
	Media          media.Service
	Authenticator  *auth.Authenticator
	MaxUploadBytes int64
}

func NewAPIV1Service(service media.Service, authenticator *auth.Authenticator) *APIV1Service {
	return &APIV1Service{
		Media:          service,
		Authenticator:  authenticator,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Register mounts the v1 routes under /api/v1. Per-owner routes need a
// bearer token whose subject is the owner id.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")
	owner := g.Group("/users/:owner", s.Authenticator.RequireSubject("owner"))
	owner.POST("/media", s.IngestMedia)
	owner.GET("/media", s.SearchMedia)
	owner.POST("/media/:id/select", s.SelectMedia)
	g.POST("/admin/reindex", s.Reindex, s.Authenticator.RequireRole(auth.RoleAdmin))
}

// toHTTPError maps service errors onto status codes. Errors already carrying
// a status pass through.
func toHTTPError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var (
		embedProvider *embedding.ProviderError
		embedProtocol *embedding.ProtocolError
		translateErr  *translate.ProviderError
	)
	switch {
	case errors.Is(err, media.ErrInvalidCursor):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
	case errors.Is(err, media.ErrConcurrentSubmission):
		return echo.NewHTTPError(http.StatusConflict, "media was saved by a concurrent request")
	case errors.Is(err, media.ErrReindexRunning):
		return echo.NewHTTPError(http.StatusConflict, "reindex already running")
	case errors.As(err, &embedProvider), errors.As(err, &embedProtocol),
		errors.Is(err, embedding.ErrEmptyResult), errors.As(err, &translateErr):
		return echo.NewHTTPError(http.StatusBadGateway, "upstream provider failed").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
