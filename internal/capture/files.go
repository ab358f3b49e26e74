// Package capture provides frame sources for the live recognition loop.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsFrameFile reports whether the file name has a supported image extension.
func IsFrameFile(name string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(name))]
}

// FileSource yields the given image files in order, then io.EOF.
type FileSource struct {
	paths []string
	next  int
}

// NewFileSource creates a source over paths.
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: paths}
}

// Next returns the content of the next file.
func (s *FileSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied frame path
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", path, err)
	}
	return data, nil
}

// Current returns the path of the frame last returned by Next.
func (s *FileSource) Current() string {
	if s.next == 0 {
		return ""
	}
	return s.paths[s.next-1]
}

// Len returns the number of frames.
func (s *FileSource) Len() int {
	return len(s.paths)
}
