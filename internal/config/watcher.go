package config

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent signals that a watched config file changed on disk.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher notifies subscribers when the user or project config changes,
// so long-running sessions can pick up routing policy edits without a
// restart.
type Watcher struct {
	paths  []string
	events chan ReloadEvent
}

// NewWatcher creates a Watcher over the given config file paths. Empty
// paths are skipped.
func NewWatcher(paths ...string) *Watcher {
	var keep []string
	for _, p := range paths {
		if p != "" {
			keep = append(keep, filepath.Clean(p))
		}
	}
	return &Watcher{
		paths:  keep,
		events: make(chan ReloadEvent, 16),
	}
}

// Events returns the channel reload notifications are delivered on.
// It is closed when the watcher stops.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, p := range w.paths {
		// Missing files are fine; editors often create them later.
		_ = fsw.Add(p)
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
					// Slow consumer; drop rather than block the watch loop.
				}
				log.Printf("[config] file changed: %s (%s)", ev.Name, ev.Op)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("[config] watcher error: %v", err)
			}
		}
	}()
	return nil
}
