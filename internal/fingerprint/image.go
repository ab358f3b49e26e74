package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrUnsupportedFormat is returned for images that are neither JPEG nor PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format returns the file extension (".jpg" or ".png") matching the encoded image.
func Format(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	switch format {
	case "jpeg":
		return ".jpg", nil
	case "png":
		return ".png", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Downscale shrinks an image to fit within maxSize keeping the aspect ratio.
// Images already small enough are returned unchanged, others are re-encoded as JPEG.
// The returned factor maps coordinates in the result back to the original (1 when unchanged).
func Downscale(data []byte, maxSize int) ([]byte, float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return data, 1, nil
	}

	nw, nh := maxSize, h*maxSize/w
	if h > w {
		nw, nh = w*maxSize/h, maxSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(nw, 1), max(nh, 1)))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), float64(w) / float64(dst.Bounds().Dx()), nil
}
