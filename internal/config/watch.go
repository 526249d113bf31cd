package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the config file and calls onChange with the freshly loaded
// configuration whenever it is written. It returns once the watcher is
// installed; watching stops when ctx is cancelled. Reload failures are
// logged and skipped, keeping the previous configuration live.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	logger.Info("watching config file for changes", slog.String("path", path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("config watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}

				logger.Info("config file changed, reloading", slog.String("path", event.Name))

				cfg, err := Load(path)
				if err != nil {
					logger.Error("failed to reload config",
						slog.String("error", err.Error()),
						slog.String("path", path))
					continue
				}
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
