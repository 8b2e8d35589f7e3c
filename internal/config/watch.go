package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long Watch waits after the last file event before
// reloading. Editors save through a burst of writes (or a rename plus a
// write on atomic save); the burst collapses into one reload.
const reloadDebounce = 100 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly
// loaded Config once a burst of write events has settled. It runs until
// ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML or a rejected smoothing factor),
// the error is logged and the previous config remains active — Watch does
// not call onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only write and create events signal new content; create
			// covers editors that save via rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Restarting the timer on every event debounces the burst:
			// the reload fires once, after the last write settles.
			pending = time.After(reloadDebounce)
			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
