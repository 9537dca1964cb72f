package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit for one save.
const reloadDelay = 250 * time.Millisecond

// Reload loads dir and swaps the registry content. On error the registry
// keeps serving the previous schemas.
func Reload(dir string, reg *Registry) error {
	schemas, err := LoadDir(dir)
	if err != nil {
		return err
	}
	return reg.Replace(schemas)
}

// Watch reloads the registry whenever a schema file in dir changes. It
// blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, reg *Registry, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch schema dir: %w", err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSchemaFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("schema file changed", "event", event.Op.String(), "file", event.Name)
				timer.Reset(reloadDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("schema watcher error", "error", err)

		case <-timer.C:
			if err := Reload(dir, reg); err != nil {
				logger.Error("schema reload failed, keeping previous schemas", "dir", dir, "error", err)
				continue
			}
			logger.Info("schemas reloaded", "dir", dir, "count", reg.Len())
		}
	}
}
