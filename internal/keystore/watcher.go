package keystore

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the credentials file and invokes onCleared whenever the
// stored tokens disappear. This is how a logout performed by another process
// sharing the keystore reaches this one: the other writer empties the token
// fields (or removes the file) and every watcher tears its session down.
//
// The parent directory is watched rather than the file itself because writes
// go through a rename, which would detach a direct file watch.
//
// Watch blocks until ctx is done or the watcher fails; run it in its own
// goroutine.
func (f *FileStore) Watch(ctx context.Context, logger *slog.Logger, onCleared func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return err
	}

	name := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return ErrClosed
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			access, _, _ := f.LoadTokens()
			if access == "" {
				logger.Info("persisted tokens cleared externally")
				onCleared()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrClosed
			}
			logger.Warn("keystore watcher error", "error", err)
		}
	}
}
