package facematch

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// HashStrategy checks a probe against one caller-chosen reference by
// perceptual hash. It does not search the store.
type HashStrategy struct {
	// Threshold in bits, the Hamming distance must be strictly below it.
	Threshold int
}

// NewHashStrategy creates a perceptual hash strategy.
func NewHashStrategy(threshold int) *HashStrategy {
	return &HashStrategy{Threshold: threshold}
}

// Compare hashes the probe and the candidate's reference image. An
// undecodable probe is a no-match decision, its error is kept on the
// comparison. A reference that cannot be hashed is ErrComparisonFailure.
func (s *HashStrategy) Compare(probe []byte, candidate identity.Entry) (Decision, error) {
	probeHash, err := fingerprint.Compute(probe)
	if err != nil {
		decision := unknownDecision(nil)
		decision.Comparisons = []Comparison{{Candidate: candidate.Name, Err: err}}
		return decision, nil
	}
	refHash, err := fingerprint.ComputeFile(candidate.Path)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %s: %w", ErrComparisonFailure, candidate.Name, err)
	}

	bits := probeHash.Distance(refHash)
	passes := fingerprint.Below(probeHash.PHash, refHash.PHash, s.Threshold)
	c := Comparison{
		Candidate:  candidate.Name,
		Distance:   float64(bits),
		Verified:   passes,
		Confidence: confidence(float64(bits), float64(s.Threshold)),
		Passes:     passes,
	}

	decision := unknownDecision(nil)
	decision.Distance = c.Distance
	decision.Confidence = c.Confidence
	decision.Comparisons = []Comparison{c}
	if passes {
		decision.Name = candidate.Name
		decision.Matched = true
	}
	return decision, nil
}
