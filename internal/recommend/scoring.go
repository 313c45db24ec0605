// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package recommend

import "math"

// DefaultSensitivity controls how quickly negative feedback saturates the
// penalty. At 0.1, ten net downvotes already cost about 7.6 points.
const DefaultSensitivity = 0.1

// Scorer blends vector similarity with community feedback into a single
// display score on a 0..10 scale.
//
// Similarity alone sets the base: a cosine distance of 0 scores 10, a
// distance of 1 scores 0. Positive feedback never inflates the score; only
// net-negative feedback subtracts, through a tanh that saturates so a pile-on
// cannot push a candidate below what one more downvote would.
type Scorer struct {
	// Sensitivity scales net downvotes inside the tanh. Must be positive.
	Sensitivity float64
}

// NewScorer returns a Scorer with the default sensitivity.
func NewScorer() Scorer {
	return Scorer{Sensitivity: DefaultSensitivity}
}

// Score computes the blended score for a candidate at the given cosine
// distance with the given net vote sum. The result is always in [0, 10].
func (s Scorer) Score(distance float64, netVotes int) float64 {
	base := 10 * (1 - distance)
	if base < 0 {
		base = 0
	} else if base > 10 {
		base = 10
	}

	if netVotes >= 0 {
		return base
	}

	k := s.Sensitivity
	if k <= 0 {
		k = DefaultSensitivity
	}
	penalty := 10 * math.Tanh(float64(-netVotes)*k)

	score := base - penalty
	if score < 0 {
		return 0
	}
	return score
}
