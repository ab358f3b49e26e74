package facematch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/sirupsen/logrus"
)

// DistanceStrategy encodes every probe face and picks the reference with the
// smallest distance. The nearest reference only matches when its distance is
// strictly below Threshold.
type DistanceStrategy struct {
	Capability recognizer.Capability
	Metric     string
	Threshold  float64
	// Index, when set and populated, narrows the candidates to the nearest
	// Candidates references before exact distances are computed.
	Index      *database.HNSWIndex
	Candidates int
	Log        logrus.FieldLogger
}

// NewDistanceStrategy creates a distance strategy without an index.
func NewDistanceStrategy(capability recognizer.Capability, metric string, threshold float64, log logrus.FieldLogger) *DistanceStrategy {
	return &DistanceStrategy{
		Capability: capability,
		Metric:     metric,
		Threshold:  threshold,
		Candidates: constants.HNSWSearchCandidates,
		Log:        log,
	}
}

// Name returns config.StrategyDistance.
func (s *DistanceStrategy) Name() string {
	return config.StrategyDistance
}

// reference is an entry with a usable embedding.
type reference struct {
	entry     identity.Entry
	embedding []float32
}

// Identify returns one decision per probe face in detection order.
func (s *DistanceStrategy) Identify(ctx context.Context, probe []byte, entries []identity.Entry) ([]Decision, error) {
	log := s.logger()

	detections, err := s.Capability.DetectAndEncode(ctx, probe)
	if err != nil {
		log.WithError(err).Debug("Probe could not be encoded, treating as no faces")
		return nil, nil
	}
	if len(detections) == 0 {
		return nil, nil
	}

	refs, failures := s.resolve(ctx, entries)
	if len(refs) == 0 && len(failures) > 0 {
		return nil, comparisonFailure(failures)
	}

	byName := make(map[string]int, len(refs))
	for i, r := range refs {
		byName[r.entry.Name] = i
	}

	decisions := make([]Decision, 0, len(detections))
	compared := false
	for _, det := range detections {
		candidates := s.candidates(det.Embedding, refs, byName)

		var comparisons []Comparison
		best := -1
		for _, r := range candidates {
			d, err := Distance(s.Metric, det.Embedding, r.embedding)
			if err != nil {
				log.WithError(err).WithField("name", r.entry.Name).Debug("Skipping reference")
				failures = append(failures, fmt.Errorf("%s: %w", r.entry.Name, err))
				comparisons = append(comparisons, Comparison{Candidate: r.entry.Name, Err: err})
				continue
			}
			compared = true
			passes := d < s.Threshold
			comparisons = append(comparisons, Comparison{
				Candidate:  r.entry.Name,
				Distance:   d,
				Verified:   passes,
				Confidence: confidence(d, s.Threshold),
				Passes:     passes,
			})
			// Ties keep the earlier reference.
			if best < 0 || d < comparisons[best].Distance {
				best = len(comparisons) - 1
			}
		}

		decision := unknownDecision(det.BBox)
		decision.Comparisons = comparisons
		if best >= 0 {
			c := comparisons[best]
			decision.Distance = c.Distance
			decision.Confidence = c.Confidence
			if c.Passes {
				decision.Name = c.Candidate
				decision.Matched = true
			}
		}
		decisions = append(decisions, decision)
	}

	if !compared && len(failures) > 0 {
		return nil, comparisonFailure(failures)
	}
	return decisions, nil
}

// resolve returns the entries that have an embedding, encoding image-mode
// references on demand. Failing references are skipped and reported.
func (s *DistanceStrategy) resolve(ctx context.Context, entries []identity.Entry) ([]reference, []error) {
	log := s.logger()
	refs := make([]reference, 0, len(entries))
	var failures []error

	for _, e := range entries {
		if e.HasEmbedding() {
			refs = append(refs, reference{entry: e, embedding: e.Embedding})
			continue
		}
		emb, err := s.encodeReference(ctx, e)
		if err != nil {
			log.WithError(err).WithField("name", e.Name).Debug("Skipping reference")
			failures = append(failures, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		refs = append(refs, reference{entry: e, embedding: emb})
	}
	return refs, failures
}

func (s *DistanceStrategy) encodeReference(ctx context.Context, e identity.Entry) ([]float32, error) {
	data, err := e.ReadImage()
	if err != nil {
		return nil, err
	}
	detections, err := s.Capability.DetectAndEncode(ctx, data)
	if err != nil {
		return nil, err
	}
	for _, d := range detections {
		if len(d.Embedding) > 0 {
			return d.Embedding, nil
		}
	}
	return nil, recognizer.ErrNoFaceDetected
}

// candidates narrows refs through the index. Without an index, or when the
// index knows none of the current references, every reference is a candidate.
func (s *DistanceStrategy) candidates(query []float32, refs []reference, byName map[string]int) []reference {
	if s.Index == nil || s.Index.Count() == 0 || s.Candidates <= 0 || len(refs) <= s.Candidates {
		return refs
	}
	names, err := s.Index.Search(query, s.Candidates)
	if err != nil {
		s.logger().WithError(err).Debug("Index search failed, comparing all references")
		return refs
	}

	// Keep store order so ties resolve the same way as a full scan.
	picked := make([]bool, len(refs))
	n := 0
	for _, name := range names {
		if i, ok := byName[name]; ok && !picked[i] {
			picked[i] = true
			n++
		}
	}
	if n == 0 {
		return refs
	}
	out := make([]reference, 0, n)
	for i, r := range refs {
		if picked[i] {
			out = append(out, r)
		}
	}
	return out
}

func (s *DistanceStrategy) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// VerifyStrategy asks the capability to verify the probe against each
// reference image in store order and returns the first reference reported as
// the same person. Order decides between several plausible matches, not
// confidence.
type VerifyStrategy struct {
	Capability recognizer.Capability
	Log        logrus.FieldLogger
}

// NewVerifyStrategy creates a pairwise verification strategy.
func NewVerifyStrategy(capability recognizer.Capability, log logrus.FieldLogger) *VerifyStrategy {
	return &VerifyStrategy{Capability: capability, Log: log}
}

// Name returns config.StrategyVerify.
func (s *VerifyStrategy) Name() string {
	return config.StrategyVerify
}

// Identify returns a single decision for the whole probe. A missing face on
// either side counts as "not the same person", not as a failure. An
// undecodable probe yields no decisions, like in DistanceStrategy.
func (s *VerifyStrategy) Identify(ctx context.Context, probe []byte, entries []identity.Entry) ([]Decision, error) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	if err := fingerprint.Decodable(probe); err != nil {
		log.WithError(err).Debug("Probe could not be decoded, treating as no faces")
		return nil, nil
	}

	decision := unknownDecision(nil)
	var failures []error
	compared := false

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("verification interrupted: %w", err)
		}

		ref, err := e.ReadImage()
		if err != nil {
			log.WithError(err).WithField("name", e.Name).Debug("Skipping reference")
			failures = append(failures, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}

		v, err := s.Capability.Verify(ctx, probe, ref)
		if errors.Is(err, recognizer.ErrNoFaceDetected) {
			compared = true
			decision.Comparisons = append(decision.Comparisons, Comparison{Candidate: e.Name})
			continue
		}
		if err != nil {
			log.WithError(err).WithField("name", e.Name).Debug("Skipping reference")
			failures = append(failures, fmt.Errorf("%s: %w", e.Name, err))
			decision.Comparisons = append(decision.Comparisons, Comparison{Candidate: e.Name, Err: err})
			continue
		}

		compared = true
		c := Comparison{
			Candidate:  e.Name,
			Distance:   v.Distance,
			Verified:   v.Same,
			Confidence: v.Confidence,
			Passes:     v.Same,
		}
		decision.Comparisons = append(decision.Comparisons, c)
		if v.Same {
			decision.Name = e.Name
			decision.Matched = true
			decision.Distance = v.Distance
			decision.Confidence = v.Confidence
			return []Decision{decision}, nil
		}
	}

	if !compared && len(failures) > 0 {
		return nil, comparisonFailure(failures)
	}
	return []Decision{decision}, nil
}
