package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/picsave/ai/metrics"
	"github.com/hrygo/picsave/internal/profile"
	"github.com/hrygo/picsave/server/auth"
	"github.com/hrygo/picsave/server/service/media"
)

type nopService struct{}

func (nopService) Ingest(context.Context, *media.Submission) (*media.IngestResult, error) {
	return &media.IngestResult{}, nil
}

func (nopService) Search(context.Context, *media.Query) (*media.Page, error) {
	return &media.Page{NoMatches: true}, nil
}

func (nopService) Select(context.Context, *media.Selection) (bool, error) { return false, nil }

func (nopService) Reindex(context.Context) (*media.ReindexReport, error) {
	return &media.ReindexReport{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Version: "0.1.0-dev", Port: 0}
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	exporter.RecordSelection(true)
	return NewServer(p, nopService{}, exporter, auth.NewAuthenticator("secret"))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "0.1.0-dev", body["version"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "picsave_media_selections_total")
}

func TestAdminRouteRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(t)
	s.Profile.Addr = "127.0.0.1"
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown(context.Background())
}
