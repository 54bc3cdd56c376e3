package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch calls onChange after a keyword file is edited by something other
// than this store. Bursts of events are coalesced. Watch blocks until ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer w.Close()

	watched := map[string]bool{}
	for _, name := range []string{exactFile, containsFile, configFile} {
		path := s.path(name)
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if !watched[dir] {
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			watched[dir] = true
		}
	}
	slog.Info("keyword file watcher started", "dir", s.dir)

	targets := map[string]bool{
		s.path(exactFile):    true,
		s.path(containsFile): true,
		s.path(configFile):   true,
	}

	var timer *time.Timer
	var fire <-chan time.Time
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[ev.Name] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			external := false
			for path := range pending {
				if !s.ownWrite(path) {
					external = true
				}
				delete(pending, path)
			}
			if external {
				slog.Info("keyword files changed on disk, reloading", "dir", s.dir)
				onChange()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("keyword file watcher error", "error", err)
		}
	}
}
