package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
)

type stubProgress struct {
	targets []checkpoint.TargetProgress
	err     error
}

func (s stubProgress) Snapshot() ([]checkpoint.TargetProgress, error) {
	return s.targets, s.err
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(stubProgress{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetProgress(t *testing.T) {
	t.Parallel()

	srv := NewServer(stubProgress{targets: []checkpoint.TargetProgress{
		{URL: "https://tiki.vn/a-p1.html", Completed: true, Total: 100, TotalCap: 100},
		{URL: "https://tiki.vn/b-p2.html", Completed: false, Total: 40, TotalCap: 500},
	}}, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Targets   []checkpoint.TargetProgress `json:"targets"`
		Completed int                         `json:"completed"`
		Known     int                         `json:"known"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Known)
	require.Equal(t, 1, body.Completed)
	require.Len(t, body.Targets, 2)
}

func TestGetProgressError(t *testing.T) {
	t.Parallel()

	srv := NewServer(stubProgress{err: errors.New("disk gone")}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"progress unavailable"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(stubProgress{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
