// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package face compares face encodings and talks to the external encoder that
// produces them.
package face

import (
	"math"

	"github.com/samber/oops"
)

// DefaultTolerance is the largest distance that is still not a match.
const DefaultTolerance = 0.5

// CodeInvalidInput marks vectors that cannot be compared.
const CodeInvalidInput = "FACE_INVALID_INPUT"

// Vector is a fixed-length face encoding.
type Vector []float64

// Validate reports whether v can take part in a comparison.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return oops.Code(CodeInvalidInput).Errorf("face encoding is empty")
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return oops.Code(CodeInvalidInput).
				With("index", i).
				Errorf("face encoding contains a non-finite value")
		}
	}
	return nil
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vector) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if len(a) != len(b) {
		return 0, oops.Code(CodeInvalidInput).
			With("stored_len", len(a)).
			With("candidate_len", len(b)).
			Errorf("face encodings have different dimensions")
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MatchResult is the outcome of one comparison. Confidence is 1 - Distance and
// is informational only; it may fall outside [0, 1].
type MatchResult struct {
	IsMatch    bool    `json:"match"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Matcher decides whether two encodings belong to the same face.
type Matcher struct {
	tolerance float64
}

// NewMatcher creates a Matcher. The tolerance must be a positive finite number.
func NewMatcher(tolerance float64) (*Matcher, error) {
	if tolerance <= 0 || math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		return nil, oops.Code("FACE_INVALID_TOLERANCE").
			With("tolerance", tolerance).
			Errorf("face tolerance must be a positive number")
	}
	return &Matcher{tolerance: tolerance}, nil
}

// Tolerance returns the configured tolerance.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Match compares a candidate against a stored encoding. A distance equal to
// the tolerance is not a match.
func (m *Matcher) Match(stored, candidate Vector) (MatchResult, error) {
	d, err := Distance(stored, candidate)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{
		IsMatch:    d < m.tolerance,
		Distance:   d,
		Confidence: 1 - d,
	}, nil
}
