package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
)

// Register stores image as the reference for name and updates the store in
// place. The image must be a JPEG or PNG with at least one detectable face.
// An existing name fails with ErrDuplicateName unless overwrite is set; the
// overwritten entry keeps its position, new names are appended.
func (s *Store) Register(ctx context.Context, name string, image []byte, overwrite bool) (Entry, error) {
	name, err := SanitizeName(name)
	if err != nil {
		return Entry{}, err
	}

	ext, err := fingerprint.Format(image)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrInvalidFace, err)
	}

	embedding, err := s.encode(ctx, image)
	if errors.Is(err, recognizer.ErrNoFaceDetected) {
		return Entry{}, fmt.Errorf("%w: %w", ErrInvalidFace, err)
	}
	if err != nil {
		return Entry{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.filesFor(name)
	if err != nil {
		return Entry{}, err
	}
	_, loaded := s.Get(name)
	if (loaded || len(existing) > 0) && !overwrite {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating reference directory: %w", err)
	}
	path := filepath.Join(s.dir, name+ext)
	if err := renameio.WriteFile(path, image, 0o644); err != nil {
		return Entry{}, fmt.Errorf("writing reference image: %w", err)
	}
	for _, old := range existing {
		if old != path {
			if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.WithError(err).WithField("file", old).Warn("Failed to remove replaced reference image")
			}
		}
	}

	entry := Entry{Name: name, Path: path, ContentHash: contentHash(image)}
	if s.mode == config.ModeEmbedding {
		entry.Embedding = embedding
		s.saveToCache(ctx, entry)
	}

	s.mu.RLock()
	entries := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	i, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}
	s.swap(entries)

	s.log.WithField("name", name).Info("Registered identity")
	return entry, nil
}

// Delete removes every reference file for name and drops the entry.
func (s *Store) Delete(ctx context.Context, name string) error {
	name, err := SanitizeName(name)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	files, err := s.filesFor(name)
	if err != nil {
		return err
	}
	s.mu.RLock()
	i, loaded := s.byName[name]
	s.mu.RUnlock()
	if !loaded && len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing reference image: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.DeleteReference(ctx, name); err != nil {
			s.log.WithError(err).WithField("name", name).Warn("Failed to drop cached reference embedding")
		}
	}

	if loaded {
		s.mu.RLock()
		entries := make([]Entry, 0, len(s.entries)-1)
		entries = append(entries, s.entries[:i]...)
		entries = append(entries, s.entries[i+1:]...)
		s.mu.RUnlock()
		s.swap(entries)
	}

	s.log.WithField("name", name).Info("Deleted identity")
	return nil
}

// filesFor lists the reference files that load as name.
func (s *Store) filesFor(name string) ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reference directory: %w", err)
	}
	var files []string
	for _, de := range dirEntries {
		if de.IsDir() || !isImageFile(de.Name()) {
			continue
		}
		if n, err := nameOf(de.Name()); err == nil && n == name {
			files = append(files, filepath.Join(s.dir, de.Name()))
		}
	}
	return files, nil
}
