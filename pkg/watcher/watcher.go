package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trialviz/soa-analyzer/pkg/logging"
)

// ChangeType represents which input file changed.
type ChangeType int

const (
	ChangeTypeDocument ChangeType = iota
	ChangeTypeOverlay
	ChangeTypeProvenance
)

// ChangeEvent represents a batch of input file changes.
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches the analyzer's input files for changes. Parent
// directories are watched rather than the files themselves so atomic
// replace-on-save (the common editor and pipeline behavior) is still seen.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	typeOf  map[string]ChangeType // absolute input path -> change type
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for the given input files. Empty paths
// (unconfigured optional inputs) are skipped.
func NewFileWatcher(document, overlayPath, provenancePath string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		typeOf:  make(map[string]ChangeType),
		events:  make(chan ChangeEvent, 100),
	}

	for path, t := range map[string]ChangeType{
		document:       ChangeTypeDocument,
		overlayPath:    ChangeTypeOverlay,
		provenancePath: ChangeTypeProvenance,
	} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		fw.typeOf[abs] = t
	}

	return fw, nil
}

// Start begins watching for file changes.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for path := range fw.typeOf {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			logging.Warn("failed to watch directory", "path", dir, "error", err)
		}
	}

	logging.Info("watching input files", "count", len(fw.typeOf), "dirs", len(dirs))

	go fw.processEvents(ctx)
	return nil
}

// processEvents filters raw filesystem events down to the configured input
// files and batches them briefly before forwarding.
func (fw *FileWatcher) processEvents(ctx context.Context) {
	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(100 * time.Millisecond)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeDocument, ChangeTypeOverlay, ChangeTypeProvenance} {
			if paths := pending[t]; len(paths) > 0 {
				fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
				delete(pending, t)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			fw.watcher.Close()
			close(fw.events)
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			t, relevant := fw.typeOf[abs]
			if !relevant {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending[t] = append(pending[t], abs)
			flushTimer.Reset(100 * time.Millisecond)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher. Safe to call more than once; Close on the
// underlying fsnotify watcher is idempotent.
func (fw *FileWatcher) Stop() error {
	return fw.watcher.Close()
}
