// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package server

import (
	"context"

	"github.com/resona-dev/resona/internal/recommend"
	"github.com/resona-dev/resona/internal/store"
	"github.com/resona-dev/resona/pkg/health"
)

// Services holds dependencies injected into route handlers. Each field is an
// interface so subsystems can be mocked in tests.
type Services struct {
	Recommender RecommenderService
	// Extractor is optional; nil means the status endpoint omits
	// extractor health.
	Extractor ExtractorHealthService
}

// RecommenderService provides the recommendation operations for REST
// handlers.
type RecommenderService interface {
	StoreTrack(ctx context.Context, req recommend.StoreTrackRequest) (*store.Entry, bool, error)
	FindSimilar(ctx context.Context, id int64, limit int, excludeSelf bool) ([]recommend.Recommendation, error)
	RecordFeedback(ctx context.Context, userID string, queryID, suggestedID int64, vote int) error
	GetTrack(ctx context.Context, id int64) (*store.Entry, error)
	ListTracks(ctx context.Context) ([]*store.Entry, error)
}

// ExtractorHealthService reports the observed health of the extraction
// sidecar.
type ExtractorHealthService interface {
	Metrics() health.Metrics
}
