package stimulus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher ingests stimuli dropped as JSON files into a directory. Each
// file holds one envelope; successfully ingested files are removed.
// Parse failures leave the file in place since a writer may still be
// mid-flight, so a rewrite triggers another attempt.
type Watcher struct {
	dir    string
	queue  *Queue
	logger *slog.Logger
}

// NewWatcher creates a drop-directory watcher feeding the queue.
func NewWatcher(dir string, queue *Queue, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{dir: dir, queue: queue, logger: logger}
}

// Run watches the directory until the context is cancelled. Files already
// present at start are ingested first so a restart never strands input.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.sweep()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.ingest(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("stimulus watcher error", "error", err)
		}
	}
}

// sweep ingests every envelope file already sitting in the directory.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("sweep drop dir", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.ingest(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *Watcher) ingest(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read stimulus file", "path", path, "error", err)
		return
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		w.logger.Warn("parse stimulus file", "path", path, "error", err)
		return
	}
	if err := w.queue.Push(e); err != nil {
		w.logger.Warn("reject stimulus", "path", path, "id", e.ID, "error", err)
		if err != ErrQueueFull {
			// Invalid envelope, remove so it cannot loop forever.
			_ = os.Remove(path)
		}
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("remove ingested file", "path", path, "error", err)
	}
	w.logger.Debug("stimulus ingested", "id", e.ID, "graph", e.Graph)
}
