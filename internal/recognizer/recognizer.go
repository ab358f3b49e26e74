// Package recognizer defines the face-comparison capability the identity store
// and the matching strategies depend on, with an HTTP client for the face
// service and an optional in-process dlib backend.
package recognizer

import (
	"context"
	"errors"
	"time"
)

// ErrNoFaceDetected is returned when an image contains no recognizable face.
var ErrNoFaceDetected = errors.New("no face detected")

// Detection is a single face found in an image.
type Detection struct {
	Index     int       `json:"face_index"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Score     float64   `json:"det_score"`
}

// Verification is a same/different judgement between two images.
type Verification struct {
	Same       bool    `json:"verified"`
	Distance   float64 `json:"distance"`
	Threshold  float64 `json:"threshold"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// Capability detects and encodes faces and verifies image pairs.
// Zero detections is a valid result. Errors mean the input could not be processed.
type Capability interface {
	DetectAndEncode(ctx context.Context, image []byte) ([]Detection, error)
	Verify(ctx context.Context, a, b []byte) (*Verification, error)
}

// timeoutCapability bounds every call of the wrapped capability.
type timeoutCapability struct {
	next    Capability
	timeout time.Duration
}

// WithTimeout wraps a capability so no call outlives the given duration.
// A non-positive timeout returns the capability unchanged.
func WithTimeout(c Capability, timeout time.Duration) Capability {
	if timeout <= 0 {
		return c
	}
	return &timeoutCapability{next: c, timeout: timeout}
}

func (t *timeoutCapability) DetectAndEncode(ctx context.Context, image []byte) ([]Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DetectAndEncode(ctx, image)
}

func (t *timeoutCapability) Verify(ctx context.Context, a, b []byte) (*Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Verify(ctx, a, b)
}
