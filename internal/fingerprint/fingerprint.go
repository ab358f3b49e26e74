// Package fingerprint computes perceptual hashes of face images for the
// closed-set one-vs-one comparison and provides small image helpers.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"os"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrUndecodable is returned for data no registered image decoder accepts.
var ErrUndecodable = errors.New("undecodable image")

// Hash is the 64-bit perceptual hash of one image.
type Hash struct {
	PHash uint64 `json:"-"`
}

// Distance returns the Hamming distance between the pHashes of two images.
func (h Hash) Distance(other Hash) int {
	return HammingDistance(h.PHash, other.PHash)
}

// Decodable reports ErrUndecodable when the image header cannot be parsed.
func Decodable(imageData []byte) error {
	if _, _, err := image.DecodeConfig(bytes.NewReader(imageData)); err != nil {
		return fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return nil
}

// Compute decodes an image and hashes it.
func Compute(imageData []byte) (Hash, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return Hash{PHash: perceptualHash(img)}, nil
}

// ComputeFile hashes the image stored at path.
func ComputeFile(path string) (Hash, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the identity store
	if err != nil {
		return Hash{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Compute(data)
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Below reports whether two hashes differ in strictly fewer than threshold bits.
func Below(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) < threshold
}

// perceptualHash is the DCT based pHash: the 8x8 lowest frequencies of a
// 32x32 grayscale thumbnail (DC term excluded) compared against their median.
func perceptualHash(img image.Image) uint64 {
	gray := toGrayscale(scale(img, 32, 32))
	dct := dct2D(gray)

	coeffs := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			coeffs = append(coeffs, dct[u][v])
		}
	}
	// 63 AC terms, pad with the first coefficient of the ninth row.
	coeffs = append(coeffs, dct[8][0])

	median := median(coeffs)
	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

func scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale returns luma values indexed [x][y].
func toGrayscale(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	gray := make([][]float64, b.Dx())
	for x := range b.Dx() {
		gray[x] = make([]float64, b.Dy())
		for y := range b.Dy() {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return gray
}

// dct2D computes a square DCT-II.
func dct2D(in [][]float64) [][]float64 {
	n := len(in)
	cos := make([][]float64, n)
	for i := range n {
		cos[i] = make([]float64, n)
		for j := range n {
			cos[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(n)))
		}
	}

	out := make([][]float64, n)
	for u := range n {
		out[u] = make([]float64, n)
		for v := range n {
			var sum float64
			for x := range n {
				for y := range n {
					sum += in[x][y] * cos[u][x] * cos[v][y]
				}
			}
			out[u][v] = sum
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
