// Package cache implements Tachyon's fixed-frame page cache: a bounded pool of
// PageSize buffers shared across every open data file, evicted round-robin
// rather than by recency. Each sealed .ty file is assigned a small integer
// FileID on first access; pages are addressed by (FileID, PageID) and cached
// in FrameID-indexed frames, mirroring the page_cache module this engine's
// storage layer is modeled on.
package cache

import (
	"fmt"
	"os"
	"sync"

	"github.com/tachyondb/tachyon/errs"
)

// PageSize is the fixed size of a cached page and of every I/O the cache
// issues to the underlying file.
const PageSize = 4096

// FileSize is the maximum size a single data file is expected to reach. No
// code in this module reads it; it bounds nothing and preallocates nothing.
const FileSize = 1_000_000

// FileID identifies an open data file within one PageCache instance. It is
// assigned on first access and is not stable across process restarts.
type FileID uint32

// PageID identifies a PageSize-aligned offset within a file: byte offset is
// PageID * PageSize.
type PageID uint32

// FrameID identifies a slot in the cache's fixed frame array.
type FrameID uint32

type pageKey struct {
	file FileID
	page PageID
}

type frame struct {
	key    pageKey
	data   [PageSize]byte
	valid  bool
	pinned bool
}

// PageCache is a fixed-size pool of page frames shared by every cursor reading
// through this cache. It is safe for concurrent use.
type PageCache struct {
	mu sync.Mutex

	frames   []frame
	freeNext int // round-robin eviction cursor into frames

	lookup map[pageKey]FrameID

	filesByPath map[string]FileID
	pathsByFile []string
	handles     []*os.File
}

// New creates a PageCache with room for frameCount pages.
func New(frameCount int) *PageCache {
	return &PageCache{
		frames:      make([]frame, frameCount),
		lookup:      make(map[pageKey]FrameID, frameCount),
		filesByPath: make(map[string]FileID),
	}
}

// RegisterOrGetFileID returns the FileID assigned to path, opening it lazily
// on first reference. The cache keeps the handle open for the lifetime of the
// PageCache (or until Close is called).
func (c *PageCache) RegisterOrGetFileID(path string) (FileID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.filesByPath[path]; ok {
		return id, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open data file %s: %w", path, errs.ErrIO)
	}

	id := FileID(len(c.pathsByFile))
	c.filesByPath[path] = id
	c.pathsByFile = append(c.pathsByFile, path)
	c.handles = append(c.handles, f)

	return id, nil
}

// Read returns the PageSize bytes at the given (file, page), pulling from the
// frame cache when present and loading from disk with round-robin eviction
// otherwise. The returned slice aliases the cache frame and is only valid
// until the frame is evicted by a later Read call.
func (c *PageCache) Read(id FileID, page PageID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey{file: id, page: page}
	if fid, ok := c.lookup[key]; ok {
		return c.frames[fid].data[:], nil
	}

	return c.loadPage(id, page)
}

// loadPage evicts the next frame in round-robin order and fills it from disk.
// Callers must hold c.mu.
func (c *PageCache) loadPage(id FileID, page PageID) ([]byte, error) {
	if len(c.frames) == 0 {
		return nil, fmt.Errorf("page cache has zero frames: %w", errs.ErrIO)
	}

	fid := c.nextEvictable()
	fr := &c.frames[fid]

	if fr.valid {
		delete(c.lookup, fr.key)
	}

	h := c.handles[id]
	n, err := h.ReadAt(fr.data[:], int64(page)*PageSize)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read page %d of file %s: %w", page, c.pathsByFile[id], errs.ErrIO)
	}
	for i := n; i < PageSize; i++ {
		fr.data[i] = 0
	}

	fr.key = pageKey{file: id, page: page}
	fr.valid = true
	c.lookup[fr.key] = fid

	return fr.data[:], nil
}

// nextEvictable advances the round-robin cursor and returns the frame it
// lands on, skipping pinned frames.
func (c *PageCache) nextEvictable() FrameID {
	start := c.freeNext
	for {
		fid := c.freeNext
		c.freeNext = (c.freeNext + 1) % len(c.frames)
		if !c.frames[fid].pinned {
			return FrameID(fid)
		}
		if c.freeNext == start {
			// every frame pinned; evict the one we started on anyway
			return FrameID(start)
		}
	}
}

// Close releases every open file handle.
func (c *PageCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, h := range c.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
