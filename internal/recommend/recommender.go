// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

// Package recommend orchestrates the catalog, feedback, and extraction
// subsystems into the user-facing recommendation operations.
package recommend

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/resona-dev/resona/internal/extractor"
	"github.com/resona-dev/resona/internal/store"
	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// DefaultOverfetch is how many extra neighbors are pulled from the vector
// index beyond the requested limit. Feedback re-ranking can demote
// candidates, so fetching only limit rows would let heavily-downvoted tracks
// crowd out better ones that sit just past the cutoff.
const DefaultOverfetch = 5

// Recommendation is a scored candidate returned by FindSimilar.
type Recommendation struct {
	Entry    *store.Entry `json:"entry"`
	Distance float64      `json:"distance"`
	NetVotes int          `json:"net_votes"`
	Score    float64      `json:"score"`
}

// StoreTrackRequest carries the metadata for a track submission. The vector
// is produced by the extraction sidecar, never supplied by the caller.
type StoreTrackRequest struct {
	Title          string
	CreatorName    string
	URL            string
	SourcePlatform string
	AddedBy        string
	ReleaseDate    string
}

// Recommender implements the recommendation operations on top of the
// catalog, feedback store, and extraction sidecar.
type Recommender struct {
	catalog   store.CatalogStore
	feedback  store.FeedbackStore
	extractor extractor.Extractor
	scorer    Scorer
	overfetch int
	logger    *slog.Logger
}

// RecommenderOption configures a Recommender.
type RecommenderOption func(*Recommender)

// WithScorer overrides the default scorer.
func WithScorer(s Scorer) RecommenderOption {
	return func(r *Recommender) { r.scorer = s }
}

// WithOverfetch overrides the candidate overfetch count.
func WithOverfetch(n int) RecommenderOption {
	return func(r *Recommender) {
		if n >= 0 {
			r.overfetch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RecommenderOption {
	return func(r *Recommender) { r.logger = l }
}

// NewRecommender wires a Recommender from its collaborators.
func NewRecommender(catalog store.CatalogStore, feedback store.FeedbackStore, ext extractor.Extractor, opts ...RecommenderOption) *Recommender {
	r := &Recommender{
		catalog:   catalog,
		feedback:  feedback,
		extractor: ext,
		scorer:    NewScorer(),
		overfetch: DefaultOverfetch,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StoreTrack submits a track. If the URL is already cataloged the existing
// entry is returned without contacting the extraction sidecar; otherwise the
// sidecar analyzes the track and the result is stored. Concurrent
// submissions of the same URL are resolved by the store, so at most one
// entry ever exists per URL.
func (r *Recommender) StoreTrack(ctx context.Context, req StoreTrackRequest) (*store.Entry, bool, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, false, resonaerr.New(resonaerr.CodeServerRequestInvalid, "track url must not be empty")
	}

	// Cheap path: skip extraction entirely when the URL is already known.
	// A concurrent insert between this check and StoreOrFetch is fine; the
	// store resolves the race and we just paid for one redundant extraction.
	if existing, err := r.catalog.GetByURL(ctx, url); err == nil {
		r.logger.Debug("track already cataloged", "url", url, "entry_id", existing.ID)
		return existing, false, nil
	} else if !resonaerr.IsNotFound(err) {
		return nil, false, err
	}

	start := time.Now()
	vector, err := r.extractor.Extract(ctx, url)
	if err != nil {
		return nil, false, err
	}

	entry, isNew, err := r.catalog.StoreOrFetch(ctx, store.NewEntry{
		Title:          req.Title,
		CreatorName:    req.CreatorName,
		URL:            url,
		SourcePlatform: req.SourcePlatform,
		AddedBy:        req.AddedBy,
		ReleaseDate:    req.ReleaseDate,
		Vector:         vector,
	})
	if err != nil {
		return nil, false, err
	}

	r.logger.Info("track stored",
		"entry_id", entry.ID, "url", url, "new", isNew, "elapsed", time.Since(start))
	return entry, isNew, nil
}

// FindSimilar returns up to limit tracks similar to the entry with the given
// id, ranked by similarity blended with community feedback. When excludeSelf
// is true the query track itself is never among the results.
func (r *Recommender) FindSimilar(ctx context.Context, id int64, limit int, excludeSelf bool) ([]Recommendation, error) {
	if limit <= 0 {
		return nil, resonaerr.Errorf(resonaerr.CodeServerRequestInvalid,
			"limit must be positive, got %d", limit)
	}

	query, err := r.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	excludeID := int64(0)
	if excludeSelf {
		excludeID = id
	}

	neighbors, err := r.catalog.FindNearest(ctx, query.Vector, limit+r.overfetch, excludeID)
	if err != nil {
		return nil, err
	}

	// The store already honors excludeID; drop the query track here too so
	// a backend that misses the filter cannot recommend a track to itself.
	if excludeSelf {
		kept := neighbors[:0]
		for _, n := range neighbors {
			if n.Entry.ID == id {
				continue
			}
			kept = append(kept, n)
		}
		neighbors = kept
	}
	if len(neighbors) == 0 {
		return []Recommendation{}, nil
	}

	candidateIDs := make([]int64, len(neighbors))
	for i, n := range neighbors {
		candidateIDs[i] = n.Entry.ID
	}

	votes, err := r.feedback.AggregateScores(ctx, id, candidateIDs)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, len(neighbors))
	for i, n := range neighbors {
		net := votes[n.Entry.ID]
		recs[i] = Recommendation{
			Entry:    n.Entry,
			Distance: n.Distance,
			NetVotes: net,
			Score:    r.scorer.Score(n.Distance, net),
		}
	}

	// Highest score first; entry id breaks ties deterministically.
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Entry.ID < recs[j].Entry.ID
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}

	r.logger.Debug("similarity query completed",
		"entry_id", id, "limit", limit, "returned", len(recs))
	return recs, nil
}

// RecordFeedback stores a user's vote on a recommendation pairing. Both
// tracks must exist; a repeat vote from the same user on the same pairing
// replaces the earlier one.
func (r *Recommender) RecordFeedback(ctx context.Context, userID string, queryID, suggestedID int64, vote int) error {
	if strings.TrimSpace(userID) == "" {
		return resonaerr.New(resonaerr.CodeServerRequestInvalid, "user id must not be empty")
	}
	if err := store.ValidateVote(vote); err != nil {
		return err
	}

	if _, err := r.catalog.GetByID(ctx, queryID); err != nil {
		return err
	}
	if _, err := r.catalog.GetByID(ctx, suggestedID); err != nil {
		return err
	}

	if err := r.feedback.RecordVote(ctx, userID, queryID, suggestedID, vote); err != nil {
		return err
	}

	r.logger.Debug("feedback recorded",
		"user_id", userID, "query_id", queryID, "suggested_id", suggestedID, "vote", vote)
	return nil
}

// GetTrack returns the entry with the given id, without its vector.
func (r *Recommender) GetTrack(ctx context.Context, id int64) (*store.Entry, error) {
	entry, err := r.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.Vector = nil
	return entry, nil
}

// ListTracks returns all cataloged entries ordered by id.
func (r *Recommender) ListTracks(ctx context.Context) ([]*store.Entry, error) {
	return r.catalog.ListAll(ctx)
}
