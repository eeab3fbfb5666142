package layout

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bnema/softkeys/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog at path whenever it is written or replaced and
// hands every successfully parsed version to onChange. Invalid versions are
// logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*StaticCatalog)) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer fsWatcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Debugf("Watching keyboard catalog %s", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			catalog, err := Load(abs)
			if err != nil {
				logger.Warn("Ignoring invalid catalog update", "path", abs, "error", err)
				continue
			}
			logger.Info("Keyboard catalog reloaded", "path", abs, "keyboards", len(catalog.Keyboards()))
			onChange(catalog)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("Catalog watcher error: %v", err)
		}
	}
}
