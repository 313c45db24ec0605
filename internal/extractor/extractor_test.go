// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package extractor_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resona-dev/resona/internal/extractor"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Extract(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract", r.URL.Path)

		var req struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/track", req.URL)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []float32{0.6, 0.8, 0},
		})
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	vector, err := c.Extract(context.Background(), "https://example.com/track")
	require.NoError(t, err)
	require.Len(t, vector, 3)
	assert.InDelta(t, 0.6, vector[0], 1e-6)
	assert.True(t, c.Health().IsAvailable())
}

func TestClient_ExtractRenormalizesDrift(t *testing.T) {
	// Norm is 1.0004, inside tolerance but not exactly unit.
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []float32{1.0004, 0, 0},
		})
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	vector, err := c.Extract(context.Background(), "u")
	require.NoError(t, err)

	var sumSq float64
	for _, x := range vector {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
}

func TestClient_ExtractRejectsBadNorm(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []float32{2, 0, 0},
		})
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, resonaerr.CodeExtractorResponseInvalid, resonaerr.CodeOf(err))
	assert.False(t, c.Health().IsAvailable())
}

func TestClient_ExtractRejectsWrongDimension(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []float32{1, 0},
		})
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, resonaerr.CodeExtractorResponseInvalid, resonaerr.CodeOf(err))
}

func TestClient_ExtractUpstreamError(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "analysis failed: unsupported codec", http.StatusUnprocessableEntity)
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "u")
	require.Error(t, err)
	assert.True(t, resonaerr.IsUpstreamFailure(err))
	assert.Contains(t, err.Error(), "unsupported codec")
}

func TestClient_ExtractTimeout(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise the request context is
		// never canceled and Cleanup deadlocks in srv.Close.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	c, err := extractor.NewClient(srv.URL, 3, extractor.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "u")
	require.Error(t, err)
	assert.True(t, resonaerr.IsTimeout(err))
}

func TestClient_ExtractMalformedJSON(t *testing.T) {
	srv := extractorServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	c, err := extractor.NewClient(srv.URL, 3)
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, resonaerr.CodeExtractorResponseInvalid, resonaerr.CodeOf(err))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := extractor.NewClient("", 3)
	require.Error(t, err)

	_, err = extractor.NewClient("http://localhost:8100", 0)
	require.Error(t, err)
}

func TestHealthTracker_Cooldown(t *testing.T) {
	h := extractor.NewHealthTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.SetNowFunc(func() time.Time { return now })

	assert.True(t, h.IsAvailable())

	h.RecordFailure()
	assert.False(t, h.IsAvailable())

	m := h.Metrics()
	assert.EqualValues(t, 1, m.FailureCount)
	require.NotNil(t, m.LastFailureAt)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(extractor.DefaultHealthCooldown), *m.CooldownUntil)

	// After cooldown the sidecar becomes eligible again.
	now = now.Add(extractor.DefaultHealthCooldown)
	assert.True(t, h.IsAvailable())

	h.RecordSuccess()
	m = h.Metrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.CooldownUntil)
	assert.EqualValues(t, 1, m.FailureCount)
}
