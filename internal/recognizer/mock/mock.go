// Package mock provides a deterministic face-comparison capability for tests.
package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognizer"
)

// MockCapability returns preconfigured detections keyed by image content.
// Images without configured faces yield zero detections.
type MockCapability struct {
	mu     sync.Mutex
	faces  map[[32]byte][][]float32
	errs   map[[32]byte]error
	detect int
	verify int

	// VerifyThreshold is the Euclidean distance below which Verify reports the same person.
	VerifyThreshold float64

	// Delay is applied to every call, honoring context cancellation.
	Delay time.Duration

	// Error injection
	DetectError error
	VerifyError error
}

// NewMockCapability creates a new mock capability
func NewMockCapability() *MockCapability {
	return &MockCapability{
		faces:           make(map[[32]byte][][]float32),
		errs:            make(map[[32]byte]error),
		VerifyThreshold: 0.6,
	}
}

// SetFaces configures the embeddings returned for an image, one per face.
func (m *MockCapability) SetFaces(img []byte, embeddings ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[sha256.Sum256(img)] = embeddings
}

// SetError makes every call involving the image fail.
func (m *MockCapability) SetError(img []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[sha256.Sum256(img)] = err
}

// DetectCalls returns how many times DetectAndEncode was called.
func (m *MockCapability) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detect
}

// VerifyCalls returns how many times Verify was called.
func (m *MockCapability) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify
}

func (m *MockCapability) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockCapability) lookup(img []byte) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sha256.Sum256(img)
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	return m.faces[key], nil
}

// DetectAndEncode returns the configured faces for the image.
func (m *MockCapability) DetectAndEncode(ctx context.Context, img []byte) ([]recognizer.Detection, error) {
	m.mu.Lock()
	m.detect++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.DetectError != nil {
		return nil, m.DetectError
	}
	embeddings, err := m.lookup(img)
	if err != nil {
		return nil, err
	}

	out := make([]recognizer.Detection, len(embeddings))
	for i, e := range embeddings {
		out[i] = recognizer.Detection{
			Index:     i,
			Embedding: e,
			BBox:      []float64{float64(10 * i), 0, float64(10*i + 10), 10},
			Score:     0.99,
		}
	}
	return out, nil
}

// Verify compares the first configured face of both images.
func (m *MockCapability) Verify(ctx context.Context, a, b []byte) (*recognizer.Verification, error) {
	m.mu.Lock()
	m.verify++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.VerifyError != nil {
		return nil, m.VerifyError
	}
	fa, err := m.lookup(a)
	if err != nil {
		return nil, err
	}
	fb, err := m.lookup(b)
	if err != nil {
		return nil, err
	}
	if len(fa) == 0 || len(fb) == 0 {
		return &recognizer.Verification{Same: false, Distance: math.Inf(1), Threshold: m.VerifyThreshold, Model: "mock"}, nil
	}

	d := euclidean(fa[0], fb[0])
	return &recognizer.Verification{
		Same:       d < m.VerifyThreshold,
		Distance:   d,
		Threshold:  m.VerifyThreshold,
		Confidence: math.Max(0, 1-d),
		Model:      "mock",
	}, nil
}

func euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Image returns a small PNG whose content is unique per seed.
func Image(seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{uint8(seed), uint8(seed >> 8), uint8(x*32 + y), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
