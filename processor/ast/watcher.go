package ast

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the file watcher
type WatcherConfig struct {
	// RepoRoot is the root directory to watch
	RepoRoot string

	// Extensions lists the file extensions that produce events (default ".py")
	Extensions []string

	// Exclude are doublestar patterns for paths that never produce events
	Exclude []string

	// DebounceDelay is how long to wait for more changes before flushing a batch
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// WatchEvent represents a file change event
type WatchEvent struct {
	// Path is the absolute file path
	Path string

	// Operation is the type of change
	Operation WatchOperation
}

// WatchOperation indicates the type of file operation
type WatchOperation string

const (
	OpCreate WatchOperation = "create"
	OpModify WatchOperation = "modify"
	OpDelete WatchOperation = "delete"
)

// Watcher watches source files and emits debounced batches of changes.
// Writes that leave the content hash unchanged are dropped.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation

	// State tracking for change detection
	hashMu sync.RWMutex
	hashes map[string]string // path → content hash

	// Output channel
	batches chan []WatchEvent
}

// NewWatcher creates a new file watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 300 * time.Millisecond
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".py"}
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		batches: make(chan []WatchEvent, 16),
	}, nil
}

// Batches returns the channel of debounced change batches
func (w *Watcher) Batches() <-chan []WatchEvent {
	return w.batches
}

// Start begins watching the repository for changes
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.RepoRoot); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.RepoRoot,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Seed records the current content hash of each path so that the first
// event for an unchanged file is not reported.
func (w *Watcher) Seed(paths []string) {
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		w.SetHash(path, ComputeHash(content))
	}
}

// SetHash records the hash for a file
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded hash for a file
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

// addWatchesRecursive adds watches to all directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && ShouldSkipDir(info.Name()) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()
	defer close(w.batches)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !hasExtension(path, w.config.Extensions) {
		// New directories need their own watch
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	relPath, _ := filepath.Rel(w.config.RepoRoot, path)
	if MatchAny(w.config.Exclude, relPath) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", relPath,
		"op", event.Op.String())
}

// handleNewDirectory adds a watch to a newly created directory
func (w *Watcher) handleNewDirectory(path string) {
	if ShouldSkipDir(filepath.Base(path)) {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// flushPending turns accumulated changes into one batch
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(toProcess))
	for path := range toProcess {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var batch []WatchEvent
	for _, path := range paths {
		op := toProcess[path]
		if event, ok := w.classify(path, op); ok {
			batch = append(batch, event)
		}
	}
	if len(batch) == 0 {
		return
	}

	select {
	case w.batches <- batch:
		w.logger.Debug("Sent watch batch", "events", len(batch))
	case <-ctx.Done():
	default:
		w.logger.Warn("Batch channel full, dropping changes", "events", len(batch))
	}
}

// classify resolves the final operation for a path, dropping writes that did
// not change the content.
func (w *Watcher) classify(path string, op fsnotify.Op) (WatchEvent, bool) {
	event := WatchEvent{Path: path}

	content, err := os.ReadFile(path)
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) || os.IsNotExist(err) {
		w.hashMu.Lock()
		delete(w.hashes, path)
		w.hashMu.Unlock()
		event.Operation = OpDelete
		return event, true
	}
	if err != nil {
		w.logger.Warn("Failed to read changed file", "path", path, "error", err)
		return event, false
	}

	hash := ComputeHash(content)
	oldHash, hadHash := w.GetHash(path)
	if hadHash && oldHash == hash {
		return event, false
	}
	w.SetHash(path, hash)

	if op.Has(fsnotify.Create) || !hadHash {
		event.Operation = OpCreate
	} else {
		event.Operation = OpModify
	}
	return event, true
}
