// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/resona-dev/resona/internal/recommend"
	"github.com/resona-dev/resona/internal/server"
	"github.com/resona-dev/resona/internal/store"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
	"github.com/resona-dev/resona/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock service implementations for testing.
type mockRecommenderService struct {
	entries map[int64]*store.Entry
}

func newMockRecommender() *mockRecommenderService {
	return &mockRecommenderService{
		entries: map[int64]*store.Entry{
			1: {ID: 1, Title: "First", CreatorName: "Artist", URL: "u1", SourcePlatform: "youtube", AddedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
			2: {ID: 2, Title: "Second", CreatorName: "Artist", URL: "u2", SourcePlatform: "youtube"},
		},
	}
}

func (m *mockRecommenderService) StoreTrack(_ context.Context, req recommend.StoreTrackRequest) (*store.Entry, bool, error) {
	if req.URL == "u1" {
		return m.entries[1], false, nil
	}
	if req.URL == "broken" {
		return nil, false, resonaerr.New(resonaerr.CodeExtractorUpstreamFailure, "sidecar unreachable")
	}
	return &store.Entry{ID: 3, Title: req.Title, URL: req.URL}, true, nil
}

func (m *mockRecommenderService) FindSimilar(_ context.Context, id int64, limit int, _ bool) ([]recommend.Recommendation, error) {
	if _, ok := m.entries[id]; !ok {
		return nil, resonaerr.Errorf(resonaerr.CodeCatalogEntryNotFound, "entry %d not found", id)
	}
	recs := []recommend.Recommendation{
		{Entry: m.entries[2], Distance: 0.1, NetVotes: 3, Score: 9.0},
		{Entry: m.entries[1], Distance: 0.2, NetVotes: -1, Score: 7.0},
	}
	if limit < len(recs) {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *mockRecommenderService) RecordFeedback(_ context.Context, _ string, queryID, suggestedID int64, _ int) error {
	if _, ok := m.entries[queryID]; !ok {
		return resonaerr.Errorf(resonaerr.CodeCatalogEntryNotFound, "entry %d not found", queryID)
	}
	if _, ok := m.entries[suggestedID]; !ok {
		return resonaerr.Errorf(resonaerr.CodeCatalogEntryNotFound, "entry %d not found", suggestedID)
	}
	return nil
}

func (m *mockRecommenderService) GetTrack(_ context.Context, id int64) (*store.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, resonaerr.Errorf(resonaerr.CodeCatalogEntryNotFound, "entry %d not found", id)
	}
	return e, nil
}

func (m *mockRecommenderService) ListTracks(_ context.Context) ([]*store.Entry, error) {
	return []*store.Entry{m.entries[1], m.entries[2]}, nil
}

type mockExtractorHealth struct {
	metrics health.Metrics
}

func (m *mockExtractorHealth) Metrics() health.Metrics {
	return m.metrics
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	srv.RegisterServices(&server.Services{
		Recommender: newMockRecommender(),
		Extractor:   &mockExtractorHealth{metrics: health.Metrics{Available: true}},
	})
	return srv
}

func doRequest(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreateTrack(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tracks",
		`{"url":"u9","title":"New One"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Track store.Entry `json:"track"`
		IsNew bool        `json:"is_new"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.IsNew)
	assert.EqualValues(t, 3, out.Track.ID)
}

func TestCreateTrack_Duplicate(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tracks", `{"url":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Track store.Entry `json:"track"`
		IsNew bool        `json:"is_new"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.IsNew)
	assert.EqualValues(t, 1, out.Track.ID)
}

func TestCreateTrack_MissingURL(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tracks", `{"title":"no url"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateTrack_ExtractorDown(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tracks", `{"url":"broken"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListTracks(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/tracks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Tracks []store.Entry `json:"tracks"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Tracks, 2)
	assert.Equal(t, 2, out.Count)
}

func TestGetTrack(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/tracks/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"First"`)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/tracks/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFindSimilar(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/similar?id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Results []struct {
			ID       int64   `json:"id"`
			Title    string  `json:"title"`
			Distance float64 `json:"distance"`
			NetVotes int     `json:"net_votes"`
			Score    float64 `json:"score"`
		} `json:"results"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 2)
	assert.Equal(t, 2, out.Count)
	assert.EqualValues(t, 2, out.Results[0].ID)
	assert.InDelta(t, 9.0, out.Results[0].Score, 1e-9)
	assert.Equal(t, 3, out.Results[0].NetVotes)
}

func TestFindSimilar_Limit(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/similar?id=1&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Results []json.RawMessage `json:"results"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Results, 1)
	assert.Equal(t, 1, out.Count)

	// Limit bounds are enforced at the API layer.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/similar?id=1&limit=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/similar?id=1&limit=101", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestFindSimilar_UnknownTrack(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/similar?id=999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordFeedback(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/feedback",
		`{"user_id":"alice","query_track_id":1,"suggested_track_id":2,"vote":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"feedback recorded"`)
}

func TestRecordFeedback_Validation(t *testing.T) {
	srv := newTestServer(t)

	// Vote outside {-1, 1} is rejected by schema validation.
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/feedback",
		`{"user_id":"alice","query_track_id":1,"suggested_track_id":2,"vote":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/feedback",
		`{"user_id":"alice","query_track_id":999,"suggested_track_id":2,"vote":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Status    string          `json:"status"`
		Extractor *health.Metrics `json:"extractor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	require.NotNil(t, out.Extractor)
	assert.True(t, out.Extractor.Available)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// An incoming request ID is echoed back untouched.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "trace-42", rr.Header().Get("X-Request-ID"))
}

func TestNewServer_RequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
}
