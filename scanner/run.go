package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360studio/semcheck/domain"
	"github.com/c360studio/semcheck/metrics"
	"github.com/c360studio/semcheck/storage"
)

// RunContext is constructed once per validation run and threaded through
// every scan. There are no package-level caches.
type RunContext struct {
	// Sources parses each file at most once per run.
	Sources *SourceSet

	// Cache is a shared store for expensive per-file results, such as a
	// JetStream KV bucket. Nil uses file stores under CacheDir.
	Cache storage.Store

	// CacheDir is where Cache lives when it is file-backed.
	CacheDir string

	Domain     *domain.Model
	Classifier domain.WordClassifier
	Status     StatusSink
	Logger     *slog.Logger
	Metrics    *metrics.Recorder

	caches *cacheSet
}

// NewRunContext fills defaults for any unset collaborator.
func NewRunContext(rc RunContext) *RunContext {
	if rc.Sources == nil {
		rc.Sources = NewSourceSet(nil)
	}
	if rc.Classifier == nil {
		rc.Classifier = domain.SuffixClassifier{}
	}
	if rc.Logger == nil {
		rc.Logger = slog.Default()
	}
	if rc.Status == nil {
		rc.Status = NopStatus{}
	}
	if rc.caches == nil {
		rc.caches = &cacheSet{stores: make(map[string]storage.Store)}
	}
	return &rc
}

// Log returns the run logger, never nil.
func (rc *RunContext) Log() *slog.Logger {
	if rc == nil || rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}

// Progress forwards u to the status sink if one is set.
func (rc *RunContext) Progress(u ProgressUpdate) {
	if rc == nil || rc.Status == nil {
		return
	}
	rc.Status.Report(u)
}

// WordClassifier returns the configured classifier or the built-in one.
func (rc *RunContext) WordClassifier() domain.WordClassifier {
	if rc == nil || rc.Classifier == nil {
		return domain.SuffixClassifier{}
	}
	return rc.Classifier
}

// OpenCache returns the store for the cache subdirectory sub. An injected
// Cache is shared through a per-sub key namespace; otherwise each sub gets a
// FileStore under CacheDir (or a temp dir) on first use.
func (rc *RunContext) OpenCache(ctx context.Context, sub string) (storage.Store, error) {
	if rc.caches == nil {
		rc.caches = &cacheSet{stores: make(map[string]storage.Store)}
	}
	c := rc.caches
	c.mu.Lock()
	defer c.mu.Unlock()

	if store, ok := c.stores[sub]; ok {
		return store, nil
	}
	if rc.Cache != nil {
		store := storage.Store(storage.Namespace(rc.Cache, sub))
		if sub == "" {
			store = rc.Cache
		}
		c.stores[sub] = store
		return store, nil
	}

	dir := rc.CacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "semcheck-cache")
	}
	if sub != "" {
		dir = filepath.Join(dir, sub)
	}
	store, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	c.stores[sub] = store
	return store, nil
}

// cacheSet holds the stores opened by one run, keyed by subdirectory.
type cacheSet struct {
	mu     sync.Mutex
	stores map[string]storage.Store
}
