package facematch

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/recognizer/mock"
)

func TestHashStrategy_Compare(t *testing.T) {
	dir := t.TempDir()
	img := mock.Image(1)
	alice := imageEntry(t, dir, "alice", img)

	t.Run("same image matches", func(t *testing.T) {
		d, err := NewHashStrategy(8).Compare(img, alice)
		if err != nil {
			t.Fatalf("Compare() error: %v", err)
		}
		if !d.Matched || d.Name != "alice" || d.Distance != 0 {
			t.Errorf("decision = %+v, want alice at distance 0", d)
		}
	})

	t.Run("threshold is strict", func(t *testing.T) {
		d, err := NewHashStrategy(0).Compare(img, alice)
		if err != nil {
			t.Fatalf("Compare() error: %v", err)
		}
		if d.Matched || d.Name != Unknown {
			t.Errorf("distance 0 with threshold 0 must not match, got %+v", d)
		}
	})

	t.Run("undecodable probe is no match", func(t *testing.T) {
		d, err := NewHashStrategy(8).Compare([]byte("corrupt upload bytes"), alice)
		if err != nil {
			t.Fatalf("Compare() error: %v", err)
		}
		if d.Matched || d.Name != Unknown {
			t.Errorf("decision = %+v, want Unknown", d)
		}
		if len(d.Comparisons) != 1 || !errors.Is(d.Comparisons[0].Err, fingerprint.ErrUndecodable) {
			t.Errorf("comparisons = %+v, want one ErrUndecodable", d.Comparisons)
		}
	})

	t.Run("missing reference", func(t *testing.T) {
		missing := identity.Entry{Name: "bob", Path: filepath.Join(dir, "bob.png")}
		_, err := NewHashStrategy(8).Compare(img, missing)
		if !errors.Is(err, ErrComparisonFailure) {
			t.Errorf("error = %v, want ErrComparisonFailure", err)
		}
	})
}

func TestHashStrategy_DifferentImageRejected(t *testing.T) {
	dir := t.TempDir()
	a, b := noiseImage(1), noiseImage(2)
	alice := imageEntry(t, dir, "alice", encodePNG(t, a))

	d, err := NewHashStrategy(8).Compare(encodePNG(t, b), alice)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if d.Distance < 8 {
		t.Fatalf("Distance = %v, want at least 8 for unrelated images", d.Distance)
	}
	if d.Matched || d.Name != Unknown {
		t.Errorf("decision = %+v, want Unknown", d)
	}
	if d.Comparisons[0].Candidate != "alice" || d.Comparisons[0].Passes {
		t.Errorf("comparison = %+v, want failing alice", d.Comparisons[0])
	}
}

func TestHashStrategy_BoundaryAtThreshold(t *testing.T) {
	dir := t.TempDir()
	from, to := noiseImage(3), noiseImage(4)
	ref := encodePNG(t, from)
	alice := imageEntry(t, dir, "alice", ref)

	probe := probeAtDistance(t, from, to, 8)

	d, err := NewHashStrategy(8).Compare(probe, alice)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if d.Distance != 8 {
		t.Fatalf("Distance = %v, want 8", d.Distance)
	}
	if d.Matched {
		t.Errorf("distance 8 with threshold 8 must not match, got %+v", d)
	}

	d, err = NewHashStrategy(9).Compare(probe, alice)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if !d.Matched || d.Name != "alice" {
		t.Errorf("distance 8 with threshold 9 must match, got %+v", d)
	}
}

// probeAtDistance blends from towards to until the pHash differs from the
// one of from in exactly want bits.
func probeAtDistance(t *testing.T, from, to *image.Gray, want int) []byte {
	t.Helper()
	base, err := fingerprint.Compute(encodePNG(t, from))
	if err != nil {
		t.Fatal(err)
	}
	distance := func(alpha float64) (int, []byte) {
		data := encodePNG(t, blend(from, to, alpha))
		h, err := fingerprint.Compute(data)
		if err != nil {
			t.Fatal(err)
		}
		return base.Distance(h), data
	}

	const coarse, fine = 200, 50
	prev := 0.0
	for i := 1; i <= coarse; i++ {
		alpha := float64(i) / coarse
		n, data := distance(alpha)
		if n == want {
			return data
		}
		if n > want {
			for j := 1; j < fine; j++ {
				if m, data := distance(prev + (alpha-prev)*float64(j)/fine); m == want {
					return data
				}
			}
			break
		}
		prev = alpha
	}
	t.Fatalf("no blend reached a distance of %d bits", want)
	return nil
}

func noiseImage(seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func blend(a, b *image.Gray, alpha float64) *image.Gray {
	out := image.NewGray(a.Bounds())
	for i := range out.Pix {
		out.Pix[i] = uint8((1-alpha)*float64(a.Pix[i]) + alpha*float64(b.Pix[i]) + 0.5)
	}
	return out
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
