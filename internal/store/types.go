// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package store

import (
	"math"
	"time"

	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// DefaultVectorDimensions matches the audio feature extractor's output:
// tempo (1) + spectral centroid (1) + 13 MFCC means + 12 chroma means.
const DefaultVectorDimensions = 27

// Entry is a catalog track with its stored feature vector.
type Entry struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	CreatorName    string    `json:"creator_name"`
	URL            string    `json:"url"`
	SourcePlatform string    `json:"source_platform"`
	AddedBy        string    `json:"added_by,omitempty"`
	ReleaseDate    string    `json:"release_date,omitempty"`
	AddedAt        time.Time `json:"added_at,omitzero"`

	// Vector is populated by GetByID and omitted by ListAll.
	Vector []float32 `json:"-"`
}

// NewEntry carries the caller-supplied attributes for an insert.
// ID and AddedAt are assigned by the store.
type NewEntry struct {
	Title          string
	CreatorName    string
	URL            string
	SourcePlatform string
	AddedBy        string
	ReleaseDate    string
	Vector         []float32
}

// Neighbor is a catalog entry paired with its cosine distance from a query
// vector. Distance is 1 - cosine similarity; lower means more similar.
type Neighbor struct {
	Entry    *Entry
	Distance float64
}

// ValidateVector checks that v has exactly dims elements.
func ValidateVector(v []float32, dims int) error {
	if len(v) != dims {
		return resonaerr.New(resonaerr.CodeCatalogVectorInvalid,
			"feature vector has wrong dimension",
			resonaerr.FieldDimension(dims),
			resonaerr.Field("got", len(v)),
		)
	}
	return nil
}

// ValidateVote checks that vote is +1 or -1.
func ValidateVote(vote int) error {
	if vote != 1 && vote != -1 {
		return resonaerr.Errorf(resonaerr.CodeFeedbackVoteInvalid,
			"vote must be +1 or -1, got %d", vote)
	}
	return nil
}

// CosineDistance computes 1 - cosine similarity between two vectors of equal
// length. Zero-magnitude vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2))
}
