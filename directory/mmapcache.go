package directory

import (
	"sync"

	"go.uber.org/atomic"

	mmaplib "github.com/blevesearch/mmap-go"
)

// MmapCache memoises mmap'd regions keyed by absolute path. Entries are
// held with a manual reference count rather than a true weak pointer
// (Go's weak.Pointer requires go1.24+; the teacher's own bluge/index
// vendor tree solves the identical "don't keep a segment's bytes mapped
// once the last reader is gone" problem the same way, via
// closeOnLastRefCounter in writer.go) — residency tracks live readers
// exactly the way a weak reference would, without pinning memory.
type MmapCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMmapCache returns an empty cache.
func NewMmapCache() *MmapCache {
	return &MmapCache{entries: make(map[string]*cacheEntry)}
}

type cacheEntry struct {
	mu    sync.Mutex
	refs  int
	path  string
	data  mmaplib.MMap // nil for the zero-length sentinel
	empty bool
	cache *MmapCache
}

// mappedSource is the strong handle returned to callers; Close releases
// one reference.
type mappedSource struct {
	entry *cacheEntry
	once  sync.Once
}

func (s *mappedSource) Bytes() []byte {
	if s.entry.empty {
		return nil
	}
	return []byte(s.entry.data)
}

func (s *mappedSource) Len() int {
	if s.entry.empty {
		return 0
	}
	return len(s.entry.data)
}

func (s *mappedSource) Close() error {
	var err error
	s.once.Do(func() {
		err = s.entry.release()
	})
	return err
}

func (e *cacheEntry) release() error {
	e.mu.Lock()
	e.refs--
	last := e.refs == 0
	e.mu.Unlock()

	if !last {
		return nil
	}

	e.cache.mu.Lock()
	if cur, ok := e.cache.entries[e.path]; ok && cur == e {
		delete(e.cache.entries, e.path)
	}
	e.cache.mu.Unlock()

	if e.empty || e.data == nil {
		return nil
	}
	return e.data.Unmap()
}

// Loader produces the mmap.MMap for a cache miss. It returns empty=true
// for zero-length files, in which case data is not consulted.
type Loader func() (data mmaplib.MMap, empty bool, err error)

// Get returns a ReadSource for path, consulting the cache first. A cache
// hit with a live reference increments the hit counter and adds a
// reference; a miss (or an entry whose last reference has already been
// released) calls load and inserts a fresh entry.
func (c *MmapCache) Get(path string, load Loader) (ReadSource, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		e.mu.Lock()
		if e.refs > 0 {
			e.refs++
			e.mu.Unlock()
			c.mu.Unlock()
			c.hits.Inc()
			return &mappedSource{entry: e}, nil
		}
		e.mu.Unlock()
		// expired: the last strong reader already released it.
		delete(c.entries, path)
	}
	c.mu.Unlock()

	data, empty, err := load()
	if err != nil {
		return nil, err
	}

	e := &cacheEntry{refs: 1, path: path, data: data, empty: empty, cache: c}
	c.mu.Lock()
	c.entries[path] = e
	c.mu.Unlock()
	c.misses.Inc()

	return &mappedSource{entry: e}, nil
}

// Stats reports cumulative hits, misses, and the number of entries
// currently resident (i.e. still upgradeable).
func (c *MmapCache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	size = len(c.entries)
	c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), size
}
