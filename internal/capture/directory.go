package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirectorySource yields image files as a camera drops them into a directory.
// A file is emitted once it has not been written to for the settle duration,
// so partially written snapshots are never read.
type DirectorySource struct {
	dir     string
	settle  time.Duration
	remove  bool
	log     logrus.FieldLogger
	watcher *fsnotify.Watcher

	ready chan string
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewDirectorySource starts watching dir. With remove set, each frame file is
// deleted after it has been read.
func NewDirectorySource(dir string, settle time.Duration, remove bool, log logrus.FieldLogger) (*DirectorySource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	s := &DirectorySource{
		dir:     dir,
		settle:  settle,
		remove:  remove,
		log:     log.WithFields(logrus.Fields{"component": "capture", "dir": dir}),
		watcher: watcher,
		ready:   make(chan string, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}
	go s.watchloop()
	return s, nil
}

func (s *DirectorySource) watchloop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				s.Close()
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsFrameFile(event.Name) {
				continue
			}
			s.touch(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				s.Close()
				return
			}
			s.log.WithError(err).Warn("receive fswatcher error")
		}
	}
}

// touch (re)starts the settle timer of a file.
func (s *DirectorySource) touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(s.settle)
		return
	}
	s.pending[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		select {
		case s.ready <- path:
		case <-s.done:
		}
	})
}

// Next blocks until a settled frame is available, the source is closed (io.EOF)
// or ctx is done.
func (s *DirectorySource) Next(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, io.EOF
		case path := <-s.ready:
			data, err := os.ReadFile(path) //nolint:gosec // path comes from the watched directory
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				s.log.WithError(err).WithField("file", path).Warn("Failed to read frame")
				continue
			}
			if s.remove {
				if err := os.Remove(path); err != nil {
					s.log.WithError(err).WithField("file", path).Warn("Failed to remove frame")
				}
			}
			return data, nil
		}
	}
}

// Close stops watching. Pending frames are dropped.
func (s *DirectorySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		for _, t := range s.pending {
			t.Stop()
		}
		s.mu.Unlock()
		err = s.watcher.Close()
	})
	return err
}
