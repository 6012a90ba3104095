package interestmap

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// RebuildFunc produces a fresh Map, given whatever inputs the caller
// closed over (profile directory, topology graph). Watcher calls it on
// every write/create/rename/remove event, without debouncing; the initial
// Map is built by the caller, not by Watcher.
type RebuildFunc func() (*Map, error)

// Watcher drives a Publisher from filesystem change notifications on a
// profile or catalog directory, the same way the teacher's config package
// watches a directory rather than a single file for reliability across
// editors that replace-on-save.
type Watcher struct {
	watcher *fsnotify.Watcher
	rebuild RebuildFunc
	pub     *Publisher
}

// NewWatcher creates a Watcher that rebuilds into pub whenever any file
// under dir changes, watching the directory rather than the file itself.
func NewWatcher(dir string, pub *Publisher, rebuild RebuildFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{watcher: fw, rebuild: rebuild, pub: pub}, nil
}

// Run blocks, rebuilding and republishing on every write/create/rename/
// remove event until ctx is cancelled. Rebuild errors are logged, not fatal: the
// previously published Map remains live.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			slog.Info("interestmap: change detected, rebuilding", "file", filepath.Base(event.Name))
			m, err := w.rebuild()
			if err != nil {
				slog.Warn("interestmap: rebuild failed, keeping previous map", "error", err)
				continue
			}
			w.pub.Publish(m)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("interestmap: watcher error", "error", err)
		}
	}
}
