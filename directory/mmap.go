package directory

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	mmaplib "github.com/blevesearch/mmap-go"
	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/ftserr"
)

// Mmap is the file-backed Directory implementation: a memory-mapped read
// source cache, cross-process advisory locking, atomic file replacement,
// and directory change notification, grounded on
// blugelabs/bluge/index/directory_fs.go's FileSystemDirectory.
type Mmap struct {
	root   string
	logger *zap.Logger
	cache  *MmapCache
	router *WatchRouter

	locksMu sync.Mutex
	locks   map[string]*flockGuard
}

// OpenMmap creates root if needed and returns a ready-to-use Mmap
// directory. Pass a nil logger to use zap.NewNop().
func OpenMmap(root string, logger *zap.Logger) (*Mmap, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, ftserr.Path(ftserr.ErrIO, root, err)
	}
	router, err := newWatchRouter(root, logger)
	if err != nil {
		return nil, err
	}
	return &Mmap{
		root:   root,
		logger: logger,
		cache:  NewMmapCache(),
		router: router,
		locks:  make(map[string]*flockGuard),
	}, nil
}

func (d *Mmap) abs(path string) string {
	return filepath.Join(d.root, path)
}

// OpenRead resolves path against the root and consults the MmapCache; see
// MmapCache.Get for hit/miss semantics.
func (d *Mmap) OpenRead(path string) (ReadSource, error) {
	full := d.abs(path)
	return d.cache.Get(full, func() (mmaplib.MMap, bool, error) {
		f, err := os.Open(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, ftserr.Path(ftserr.ErrFileDoesNotExist, path, err)
			}
			return nil, false, ftserr.Path(ftserr.ErrIO, path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, false, ftserr.Path(ftserr.ErrIO, path, err)
		}
		if info.Size() == 0 {
			// OS cannot map zero bytes; use the empty-source sentinel.
			return nil, true, nil
		}

		m, err := mmaplib.Map(f, mmaplib.RDONLY, 0)
		if err != nil {
			return nil, false, ftserr.Path(ftserr.ErrIO, path, err)
		}
		return m, false, nil
	})
}

type fileWriter struct {
	dir  *Mmap
	path string
	f    *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

// Flush performs flush+fsync on the data file, then fsyncs the parent
// directory — required on several POSIX filesystems for the new
// directory entry to be durable.
func (w *fileWriter) Flush() error {
	if err := w.f.Sync(); err != nil {
		return ftserr.Path(ftserr.ErrIO, w.path, err)
	}
	return syncDir(filepath.Dir(w.dir.abs(w.path)))
}

func (w *fileWriter) Close() error {
	return w.f.Close()
}

// OpenWrite creates path with exclusive-create semantics.
func (d *Mmap) OpenWrite(path string) (Writer, error) {
	full := d.abs(path)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ftserr.Path(ftserr.ErrFileAlreadyExists, path, err)
		}
		return nil, ftserr.Path(ftserr.ErrIO, path, err)
	}
	return &fileWriter{dir: d, path: path, f: f}, nil
}

// AtomicWrite writes to a sibling temporary file and renames over the
// destination; a crash at any point leaves either the previous content or
// the new content fully visible.
func (d *Mmap) AtomicWrite(path string, data []byte) error {
	full := d.abs(path)
	tmp := full + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600)
	if err != nil {
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	return syncDir(filepath.Dir(full))
}

func (d *Mmap) AtomicRead(path string) ([]byte, error) {
	data, err := os.ReadFile(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftserr.Path(ftserr.ErrFileDoesNotExist, path, err)
		}
		return nil, ftserr.Path(ftserr.ErrIO, path, err)
	}
	return data, nil
}

// Delete removes path and fsyncs the parent directory.
func (d *Mmap) Delete(path string) error {
	full := d.abs(path)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return ftserr.Path(ftserr.ErrFileDoesNotExist, path, err)
		}
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	return syncDir(filepath.Dir(full))
}

func (d *Mmap) Exists(path string) (bool, error) {
	_, err := os.Stat(d.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ftserr.Path(ftserr.ErrIO, path, err)
}

func (d *Mmap) AcquireLock(lock LockDescriptor) (LockGuard, error) {
	full := d.abs(lock.Path)
	g, err := acquireFlock(full, lock.Blocking)
	if err != nil {
		return nil, err
	}
	d.locksMu.Lock()
	d.locks[lock.Path] = g
	d.locksMu.Unlock()
	return g, nil
}

func (d *Mmap) Watch(path string, cb WatchCallback) (WatchHandle, error) {
	return d.router.subscribe(d.abs(path), cb)
}

func (d *Mmap) List(kind ItemKind) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, ftserr.Path(ftserr.ErrIO, d.root, err)
	}
	var names []string
	suffix := string(kind)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Mmap) Close() error {
	return d.router.close()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return ftserr.Path(ftserr.ErrIO, path, err)
	}
	return nil
}
