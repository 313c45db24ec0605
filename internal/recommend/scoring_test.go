// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package recommend_test

import (
	"math"
	"testing"

	"github.com/resona-dev/resona/internal/recommend"
	"github.com/stretchr/testify/assert"
)

func TestScorer_Score(t *testing.T) {
	s := recommend.NewScorer()

	tests := []struct {
		name     string
		distance float64
		netVotes int
		want     float64
	}{
		{"perfect match no votes", 0, 0, 10},
		{"orthogonal no votes", 1, 0, 0},
		{"halfway no votes", 0.5, 0, 5},
		{"positive votes never inflate", 0, 100, 10},
		{"single upvote", 0.5, 1, 5},
		{"ten net downvotes", 0, -10, 10 - 10*math.Tanh(1)},
		{"three downvotes at halfway", 0.5, -3, 5 - 10*math.Tanh(0.3)},
		{"penalty floors at zero", 0.9, -50, 0},
		{"opposed vectors clamp to zero", 1.5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.distance, tt.netVotes), 1e-9)
		})
	}
}

func TestScorer_PenaltySaturates(t *testing.T) {
	s := recommend.NewScorer()

	// A pile-on of downvotes converges; it can never cost more than 10.
	// At -1000 the tanh has fully saturated in float64, so the penalty is
	// exactly 10, never beyond.
	p100 := 10.0 - s.Score(0, -100)
	p1000 := 10.0 - s.Score(0, -1000)
	assert.Less(t, p100, 10.0)
	assert.LessOrEqual(t, p1000, 10.0)
	assert.LessOrEqual(t, p1000-p100, 1e-6)
}

func TestScorer_RangeInvariant(t *testing.T) {
	s := recommend.NewScorer()

	for _, d := range []float64{-0.1, 0, 0.3, 1, 1.7, 2} {
		for _, v := range []int{-1000, -7, 0, 3, 500} {
			got := s.Score(d, v)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 10.0)
		}
	}
}

func TestScorer_ZeroSensitivityFallsBack(t *testing.T) {
	s := recommend.Scorer{Sensitivity: 0}
	assert.InDelta(t, 10-10*math.Tanh(1), s.Score(0, -10), 1e-9)
}
