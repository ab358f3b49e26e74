//go:build dlib

package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"sync"

	face "github.com/Kagami/go-face"
)

// DlibTolerance is the Euclidean tolerance dlib uses for 128-d descriptors.
const DlibTolerance = 0.6

// Dlib runs face detection and encoding in-process with dlib models.
// Build with -tags dlib; requires libdlib and the model files in modelDir.
type Dlib struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlib loads the dlib models from modelDir.
func NewDlib(modelDir string) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("loading dlib models from %s: %w", modelDir, err)
	}
	return &Dlib{rec: rec}, nil
}

// Close releases the dlib models.
func (d *Dlib) Close() {
	d.rec.Close()
}

func (d *Dlib) recognize(ctx context.Context, data []byte) ([]face.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := asJPEG(data)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	faces, err := d.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	return faces, nil
}

// DetectAndEncode returns one 128-d descriptor per detected face.
func (d *Dlib) DetectAndEncode(ctx context.Context, data []byte) ([]Detection, error) {
	faces, err := d.recognize(ctx, data)
	if err != nil {
		return nil, err
	}
	out := make([]Detection, len(faces))
	for i, f := range faces {
		r := f.Rectangle
		out[i] = Detection{
			Index:     i,
			Embedding: f.Descriptor[:],
			BBox:      []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
			Score:     1,
		}
	}
	return out, nil
}

// Verify compares the first face of each image against DlibTolerance.
func (d *Dlib) Verify(ctx context.Context, a, b []byte) (*Verification, error) {
	fa, err := d.recognize(ctx, a)
	if err != nil {
		return nil, err
	}
	fb, err := d.recognize(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(fa) == 0 || len(fb) == 0 {
		return nil, ErrNoFaceDetected
	}

	dist := math.Sqrt(face.SquaredEuclideanDistance(fa[0].Descriptor, fb[0].Descriptor))
	return &Verification{
		Same:       dist < DlibTolerance,
		Distance:   dist,
		Threshold:  DlibTolerance,
		Confidence: math.Max(0, 1-dist/DlibTolerance),
		Model:      "dlib_face_recognition_resnet_model_v1",
	}, nil
}

// asJPEG re-encodes non-JPEG input since dlib only reads JPEG here.
func asJPEG(data []byte) ([]byte, error) {
	if detectMIMEType(data) == "image/jpeg" {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
