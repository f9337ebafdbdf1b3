// Package autoload registers collections from schema files on disk.
//
// A Loader watches one directory of JSON Schema documents. Every *.json
// file present at startup and every one created or rewritten afterwards is
// registered through the registry. Registration is idempotent on the schema
// hash, so editors that write a file in several passes do no harm.
package autoload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/quipubase/quipubase/internal/registry"
)

// Loader provisions collections from a schema directory.
type Loader struct {
	registry *registry.Registry
	dir      string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// New creates a Loader for the given directory.
func New(reg *registry.Registry, dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		registry: reg,
		dir:      dir,
		logger:   logger,
	}
}

// Start registers every schema already present, then watches the directory
// until the context is cancelled. Per-file failures are logged, never fatal;
// only an unreadable directory or a broken watcher is returned as an error.
func (l *Loader) Start(ctx context.Context) error {
	if err := l.loadAll(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create schema watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}
	l.watcher = watcher

	go l.run(ctx)
	return nil
}

// loadAll registers the schemas already sitting in the directory.
func (l *Loader) loadAll(ctx context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSchemaFile(entry.Name()) {
			continue
		}
		l.loadFile(ctx, filepath.Join(l.dir, entry.Name()))
	}
	return nil
}

func (l *Loader) run(ctx context.Context) {
	defer l.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isSchemaFile(event.Name) {
				continue
			}
			l.loadFile(ctx, event.Name)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("schema watcher error", "error", err)
		}
	}
}

// loadFile registers one schema document. Failures are logged and skipped
// so one bad file cannot block provisioning of the rest.
func (l *Loader) loadFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the watched directory
	if err != nil {
		l.logger.Warn("failed to read schema file", "path", path, "error", err)
		return
	}

	col, err := l.registry.CreateCollection(ctx, data)
	if err != nil {
		l.logger.Warn("failed to register schema file", "path", path, "error", err)
		return
	}
	l.logger.Info("schema file registered",
		"path", path, "collection", col.ID, "sha", col.SHA)
}

func isSchemaFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
