// Package watcher observes the agent workspace read-only and turns
// filesystem events into FileChange audit records. It watches the
// directory tree recursively, content-hashing files as they change so
// duplicate events collapse.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"obra/internal/logging"
	"obra/internal/types"
)

// Sink receives observed changes; satisfied by the StateManager.
type Sink interface {
	RecordFileChange(ctx context.Context, fc *types.FileChange) error
}

// Watcher follows one workspace tree for the duration of an iteration.
type Watcher struct {
	workspace string
	sink      Sink

	fs *fsnotify.Watcher

	mu       sync.Mutex
	itemID   int64
	interID  int64
	lastHash map[string]string
	done     chan struct{}
	closed   bool
}

// ignoredDirs are never watched: runtime scratch, VCS internals, and
// dependency trees churn constantly without being work product.
var ignoredDirs = map[string]bool{
	".git": true, ".obra": true, "node_modules": true, ".venv": true, "__pycache__": true,
}

// New creates a watcher over the workspace tree.
func New(workspace string, sink Sink) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.NewError(types.KindWorkspaceInvalid, "watcher.New", err)
	}
	w := &Watcher{
		workspace: workspace,
		sink:      sink,
		fs:        fs,
		lastHash:  make(map[string]string),
		done:      make(chan struct{}),
	}
	if err := w.addTree(workspace); err != nil {
		fs.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

// SetActiveItem directs subsequent records to the given work item and
// interaction. Zero item id suspends recording.
func (w *Watcher) SetActiveItem(itemID, interactionID int64) {
	w.mu.Lock()
	w.itemID = itemID
	w.interID = interactionID
	w.mu.Unlock()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			logging.Get(logging.CategoryWatcher).Warn("Cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) run() {
	log := logging.Get(logging.CategoryWatcher)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("Watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.workspace, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if ignoredDirs[part] {
			return
		}
	}

	w.mu.Lock()
	itemID, interID := w.itemID, w.interID
	w.mu.Unlock()

	info, statErr := os.Stat(ev.Name)
	switch {
	case ev.Op.Has(fsnotify.Create) && statErr == nil && info.IsDir():
		// New directories join the watch set.
		w.addTree(ev.Name)
		return
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.record(itemID, interID, rel, types.ChangeDeleted, "", 0)
		return
	case statErr != nil || info.IsDir():
		return
	}

	hash, size := hashFile(ev.Name)
	w.mu.Lock()
	prev, seen := w.lastHash[rel]
	w.lastHash[rel] = hash
	w.mu.Unlock()
	if seen && prev == hash {
		return // duplicate event, content unchanged
	}

	kind := types.ChangeModified
	if ev.Op.Has(fsnotify.Create) || !seen {
		kind = types.ChangeCreated
	}
	w.record(itemID, interID, rel, kind, hash, size)
}

func (w *Watcher) record(itemID, interID int64, rel string, kind types.ChangeKind, hash string, size int64) {
	if itemID == 0 || w.sink == nil {
		return
	}
	fc := &types.FileChange{
		WorkItemID:    itemID,
		InteractionID: interID,
		Path:          rel,
		Kind:          kind,
		ContentHash:   hash,
		Size:          size,
		ObservedAt:    time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.sink.RecordFileChange(ctx, fc); err != nil {
		logging.Get(logging.CategoryWatcher).Warn("Dropping file-change record for %s: %v", rel, err)
		return
	}
	logging.Get(logging.CategoryWatcher).Debug("Observed %s %s (%d bytes)", kind, rel, size)
}

func hashFile(path string) (string, int64) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", n
	}
	return hex.EncodeToString(h.Sum(nil)), n
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()
	return w.fs.Close()
}
