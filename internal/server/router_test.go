package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/server/middleware"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	env      wakatime.Envelope
	readyErr error
	calls    int
}

func (f *fakeService) Snapshot(context.Context) wakatime.Envelope {
	f.calls++
	return f.env
}

func (f *fakeService) Ready(context.Context) error {
	return f.readyErr
}

func newTestHandler(svc *fakeService, origins ...string) http.Handler {
	return NewHandler(origins, slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotRouteOK(t *testing.T) {
	svc := &fakeService{env: wakatime.Envelope{
		Status:          wakatime.StatusOK,
		Data:            json.RawMessage(`{"codingActivityData":{"days":[]}}`),
		LastFetchTime:   1_000,
		NextRefreshTime: 3_601_000,
	}}
	h := newTestHandler(svc)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/wakatime?t=123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
	assert.JSONEq(t, `{
		"status": "ok",
		"data": {"codingActivityData": {"days": []}},
		"lastFetchTime": 1000,
		"nextRefreshTime": 3601000
	}`, rec.Body.String())
	assert.Equal(t, 1, svc.calls)
}

func TestSnapshotRouteStaleIsOK(t *testing.T) {
	svc := &fakeService{env: wakatime.Envelope{
		Status:          wakatime.StatusStale,
		Data:            json.RawMessage(`{}`),
		LastFetchTime:   1_000,
		NextRefreshTime: 2_000,
		Warning:         "cached",
	}}

	rec := serve(newTestHandler(svc), httptest.NewRequest(http.MethodGet, "/api/wakatime", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var env wakatime.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, wakatime.StatusStale, env.Status)
	assert.Equal(t, "cached", env.Warning)
}

func TestSnapshotRouteError(t *testing.T) {
	svc := &fakeService{env: wakatime.Envelope{
		Status:          wakatime.StatusError,
		Error:           "Failed to fetch WakaTime data",
		NextRefreshTime: 2_000,
	}}

	rec := serve(newTestHandler(svc), httptest.NewRequest(http.MethodGet, "/api/wakatime", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.NotContains(t, body, "data")
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.HeaderRequestID, "abc-123")

	rec := serve(newTestHandler(&fakeService{}), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(middleware.HeaderRequestID))
}

func TestReadiness(t *testing.T) {
	rec := serve(newTestHandler(&fakeService{}), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestHandler(&fakeService{readyErr: errors.New("redis down")}), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestMetricsRoute(t *testing.T) {
	h := newTestHandler(&fakeService{env: wakatime.Envelope{Status: wakatime.StatusOK}})
	serve(h, httptest.NewRequest(http.MethodGet, "/api/wakatime", nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/wakatime", nil)
	req.Header.Set("Origin", "https://portfolio.example")

	rec := serve(newTestHandler(&fakeService{env: wakatime.Envelope{Status: wakatime.StatusOK}}, "https://portfolio.example"), req)
	assert.Equal(t, "https://portfolio.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(newTestHandler(&fakeService{env: wakatime.Envelope{Status: wakatime.StatusOK}}, "*"), req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(newTestHandler(&fakeService{}), httptest.NewRequest(http.MethodGet, "/api/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
