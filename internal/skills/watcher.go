package skills

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events (e.g. an editor's
// write-then-rename save) into a single reload.
const reloadDebounce = 250 * time.Millisecond

// Watcher hot-reloads a Loader whenever its source directories change.
type Watcher struct {
	loader *Loader
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher creates an fsnotify watcher over loader's source directories.
// Directories that don't exist yet are skipped; Start still succeeds.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range loader.SearchDirs() {
		if err := fsw.Add(dir); err != nil {
			slog.Debug("skills watcher: directory not watched", "dir", dir, "error", err)
		}
	}
	return &Watcher{loader: loader, fsw: fsw, done: make(chan struct{})}, nil
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	go func() {
		defer close(w.done)
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					if err := w.loader.Reload(); err != nil {
						slog.Warn("skills reload failed", "error", err)
					} else {
						slog.Info("skills reloaded", "count", len(w.loader.ListSkills()))
					}
				})
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("skills watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Stop closes the underlying fsnotify watcher and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	w.fsw.Close()
	<-w.done
}
