// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package store

import "context"

// CatalogStore manages durable entry storage with URL dedupe and
// distance-ordered retrieval.
type CatalogStore interface {
	// StoreOrFetch inserts entry unless one with the same URL already
	// exists, in which case the existing row is returned unchanged with
	// isNew=false. Concurrent inserts of the same URL are resolved by the
	// backend's uniqueness constraint: exactly one caller wins and losers
	// observe the winner's row, never an error or a duplicate.
	StoreOrFetch(ctx context.Context, entry NewEntry) (*Entry, bool, error)

	// GetByID returns the entry including its feature vector.
	GetByID(ctx context.Context, id int64) (*Entry, error)

	GetByURL(ctx context.Context, url string) (*Entry, error)

	// FindNearest returns up to limit entries ordered by ascending cosine
	// distance from vector, ties broken by ascending id. excludeID removes
	// that single id from candidates before limiting; zero means no
	// exclusion. An empty store yields an empty slice, not an error.
	FindNearest(ctx context.Context, vector []float32, limit int, excludeID int64) ([]Neighbor, error)

	// ListAll returns all entries ordered by ascending id, vectors omitted.
	ListAll(ctx context.Context) ([]*Entry, error)

	Close() error
}

// FeedbackStore manages per-(user, query, suggested) vote storage.
type FeedbackStore interface {
	// RecordVote upserts the vote for the (userID, queryID, suggestedID)
	// triple; a resubmission replaces the prior vote (last write wins).
	RecordVote(ctx context.Context, userID string, queryID, suggestedID int64, vote int) error

	// AggregateScores sums the current votes per candidate for queryID.
	// Candidates with no votes may be absent from the map; callers treat
	// absent as zero.
	AggregateScores(ctx context.Context, queryID int64, candidateIDs []int64) (map[int64]int, error)

	Close() error
}
