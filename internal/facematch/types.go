// Package facematch turns raw face comparisons into at most one identity per
// probe face. Three strategies are provided: nearest embedding under a
// distance threshold, first positive pairwise verification in store order,
// and a one-vs-one perceptual hash check.
package facematch

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// Unknown is the name reported when no reference matches.
const Unknown = constants.UnknownName

// ErrComparisonFailure is returned when every reference failed to compare.
// The individual failures are joined into the returned error.
var ErrComparisonFailure = errors.New("comparison failed for every reference")

// Comparison is the result of comparing a probe face with one reference.
type Comparison struct {
	Candidate  string  `json:"candidate"`
	Distance   float64 `json:"distance"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Passes     bool    `json:"passes"`
	Err        error   `json:"-"`
}

// Decision is the identity chosen for one probe face.
type Decision struct {
	Name        string       `json:"name"`
	Matched     bool         `json:"matched"`
	Distance    float64      `json:"distance"`
	Confidence  float64      `json:"confidence"`
	BBox        []float64    `json:"bbox,omitempty"`
	Comparisons []Comparison `json:"comparisons,omitempty"`
}

// unknownDecision is the decision for a face no reference matched.
func unknownDecision(bbox []float64) Decision {
	return Decision{Name: Unknown, BBox: bbox}
}

// Strategy picks identities for the faces of a probe image.
type Strategy interface {
	// Name is the configured strategy name.
	Name() string
	// Identify returns one decision per probe face, or a single decision for
	// strategies that compare whole images. A probe without faces yields no
	// decisions and no error.
	Identify(ctx context.Context, probe []byte, entries []identity.Entry) ([]Decision, error)
}

// comparisonFailure joins per-reference errors under ErrComparisonFailure.
func comparisonFailure(errs []error) error {
	return errors.Join(append([]error{ErrComparisonFailure}, errs...)...)
}
