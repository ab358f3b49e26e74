//go:build !dlib

package recognizer

import (
	"context"
	"errors"
)

var errNoDlib = errors.New("dlib backend not available: rebuild with -tags dlib")

// Dlib is only functional in binaries built with -tags dlib.
type Dlib struct{}

// NewDlib reports that the dlib backend was not compiled in.
func NewDlib(modelDir string) (*Dlib, error) {
	return nil, errNoDlib
}

func (d *Dlib) Close() {}

func (d *Dlib) DetectAndEncode(ctx context.Context, data []byte) ([]Detection, error) {
	return nil, errNoDlib
}

func (d *Dlib) Verify(ctx context.Context, a, b []byte) (*Verification, error) {
	return nil, errNoDlib
}
