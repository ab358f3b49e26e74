package identity

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Watch reloads the store whenever image files in the reference directory are
// created, written, removed or renamed. Bursts of events are collapsed into a
// single reload. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	return s.watch(ctx, constants.ReloadDebounce)
}

func (s *Store) watch(ctx context.Context, debounce time.Duration) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating reference directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}

	logger := s.log.WithField("dir", s.dir)
	logger.Info("Watching reference directory")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&relevant == 0 || !isImageFile(event.Name) {
				continue
			}
			logger.WithField("file", event.Name).Debugf("reference directory changed: %s", event.Op)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			if err := s.Reload(ctx); err != nil {
				logger.WithError(err).Warn("Reload after directory change failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("receive fswatcher error")
		}
	}
}
