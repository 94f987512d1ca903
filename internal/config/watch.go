package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures the debounced hot-reload watcher.
type WatchConfig struct {
	Logger      *slog.Logger
	Debounce    time.Duration // default 300ms
	OnReload    func(err error)
}

// Watch starts watching every non-empty bundle path's parent directory for
// changes, debouncing rapid-fire writes and calling Loader.Reload once the
// debounce window elapses. It stops when ctx is cancelled. Grounded on the
// pack's fsnotify-based hot-reload pattern (debounce timer per watched
// path, swap-on-success, logged-but-ignored failure), adapted from
// watching a single directory of files to watching this loader's five
// bundle paths.
func (l *Loader) Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{}
	for _, p := range []string{l.paths.Command, l.paths.Pipeline, l.paths.Platform, l.paths.Provider, l.paths.System} {
		if p == "" {
			continue
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			cfg.Logger.Warn("config watcher failed to add directory", "dir", dir, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := func() {
			err := l.Reload()
			if err != nil {
				cfg.Logger.Error("config reload failed, keeping previous snapshot", "error", err)
			} else {
				cfg.Logger.Info("config reloaded")
			}
			if cfg.OnReload != nil {
				cfg.OnReload(err)
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, reload)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				cfg.Logger.Warn("config watcher error", "error", werr)
			}
		}
	}()

	return nil
}
