package duplicates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/c360studio/semcheck/metrics"
	"github.com/c360studio/semcheck/storage"
)

// CacheSubdir is the cache directory under the run's cache root.
const CacheSubdir = "duplicates"

// CachedBlock is the persisted form of a Block: span, signature and preview
// only; syntax nodes are never stored.
type CachedBlock struct {
	Hash       string `json:"hash"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	FuncName   string `json:"func_name"`
	Preview    string `json:"preview"`
	Normalized string `json:"normalized"`
	Helper     bool   `json:"helper_dominated,omitempty"`
}

// CacheEntry is one file's cached blocks.
type CacheEntry struct {
	FilePath string        `json:"file_path"`
	CachedAt time.Time     `json:"cached_at"`
	Blocks   []CachedBlock `json:"blocks"`
}

// BlockCache stores extracted blocks keyed by file identity. A changed
// mtime, size or detector version produces a new key, so stale entries are
// never read.
type BlockCache struct {
	store   storage.Store
	version string
	metrics *metrics.Recorder

	hits   atomic.Int64
	misses atomic.Int64
}

// NewBlockCache wraps store. An empty version uses Version.
func NewBlockCache(store storage.Store, version string, rec *metrics.Recorder) *BlockCache {
	if version == "" {
		version = Version
	}
	return &BlockCache{store: store, version: version, metrics: rec}
}

// Key derives the cache key for path from its size and modification time.
func (c *BlockCache) Key(path string, info os.FileInfo) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s",
		abs, info.ModTime().UnixNano(), info.Size(), c.version)))
	return hex.EncodeToString(sum[:])
}

// Load returns the cached blocks for path. The bool is false on a miss.
func (c *BlockCache) Load(ctx context.Context, path string) ([]*Block, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	var entry CacheEntry
	if err := storage.GetJSON(ctx, c.store, c.Key(path, info), &entry); err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		// A corrupt entry behaves like a miss and is overwritten on save.
		c.miss()
		return nil, false, nil
	}

	c.hits.Add(1)
	c.metrics.CacheLookup(true)
	blocks := make([]*Block, 0, len(entry.Blocks))
	for _, cb := range entry.Blocks {
		blocks = append(blocks, &Block{
			File:      path,
			Function:  cb.FuncName,
			StartLine: cb.StartLine,
			EndLine:   cb.EndLine,
			Signature: cb.Normalized,
			Preview:   cb.Preview,
			Hash:      cb.Hash,

			HelperDominated: cb.Helper,
		})
	}
	return blocks, true, nil
}

// Save persists blocks for path under its current identity.
func (c *BlockCache) Save(ctx context.Context, path string, blocks []*Block) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	entry := CacheEntry{
		FilePath: path,
		CachedAt: time.Now().UTC(),
		Blocks:   make([]CachedBlock, 0, len(blocks)),
	}
	for _, b := range blocks {
		entry.Blocks = append(entry.Blocks, CachedBlock{
			Hash:       b.Hash,
			StartLine:  b.StartLine,
			EndLine:    b.EndLine,
			FuncName:   b.Function,
			Preview:    b.Preview,
			Normalized: b.Signature,
			Helper:     b.HelperDominated,
		})
	}
	return storage.PutJSON(ctx, c.store, c.Key(path, info), entry)
}

// Stats returns hit and miss counts since creation.
func (c *BlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *BlockCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheLookup(false)
}
