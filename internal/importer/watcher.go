package importer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mirza-mirror/internal/contextutil"
)

// How long a file must stay quiet before it is read. Exports are often
// created empty and written in chunks afterwards.
const importDebounce = 500 * time.Millisecond

// Watcher imports conversation exports dropped into a directory. The
// source and format are inferred from the filename: <source>-*.md or
// <source>-*.json, for example chatgpt-2024-03-01.json.
type Watcher struct {
	importer *Importer
	watcher  *fsnotify.Watcher
	dir      string
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewWatcher(importer *Importer, dir string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		importer: importer,
		watcher:  w,
		dir:      dir,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Watch processes files already present in the directory, then imports
// new files as they appear until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.importFile(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.scheduleImport(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("import watcher error", "error", err)
		}
	}
}

// Stop cancels pending imports and closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// scheduleImport defers the import until the file has been quiet for
// importDebounce. A drop arrives as a Create followed by one or more
// Writes; each event resets the timer so only the settled file is read.
func (w *Watcher) scheduleImport(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(importDebounce)
		return
	}
	w.pending[path] = time.AfterFunc(importDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.importFile(ctx, path)
	})
}

// importFile imports one dropped file. Unrecognized names and parse
// failures are logged and skipped so one bad file cannot stall the watch.
func (w *Watcher) importFile(ctx context.Context, path string) {
	source, format, ok := inferSourceFormat(path)
	if !ok {
		w.logger.Debug("ignoring unrecognized import file", "path", path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read import file", "path", path, "error", err)
		return
	}

	ctx = contextutil.WithLogger(ctx, w.logger)
	result, err := w.importer.Import(ctx, data, source, format, path)
	if err != nil {
		w.logger.Warn("failed to import dropped file",
			"path", path, "source", source, "format", format, "error", err)
		return
	}
	w.logger.Info("imported dropped file",
		"path", path, "conversation_id", result.ConversationID, "messages", result.MessageCount)
}

// inferSourceFormat derives (source, format) from a dropped filename.
func inferSourceFormat(path string) (source, format string, ok bool) {
	base := strings.ToLower(filepath.Base(path))

	switch filepath.Ext(base) {
	case ".md", ".markdown":
		format = FormatMarkdown
	case ".json":
		format = FormatJSON
	default:
		return "", "", false
	}

	for _, s := range SupportedSources() {
		if strings.HasPrefix(base, s) {
			return s, format, true
		}
	}
	return "", "", false
}
