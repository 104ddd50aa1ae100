package directory

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lumenidx/ftsengine/ftserr"
)

// Mem is an in-memory Directory, used for tests and for callers that do
// not need durability (spec.md §3 "the option of an in-memory directory
// for testing").
type Mem struct {
	mu    sync.Mutex
	files map[string][]byte
	locks map[string]struct{}

	watchMu     sync.Mutex
	subscribers map[string][]WatchCallback
}

// NewMem returns an empty in-memory directory.
func NewMem() *Mem {
	return &Mem{
		files:       make(map[string][]byte),
		locks:       make(map[string]struct{}),
		subscribers: make(map[string][]WatchCallback),
	}
}

type memReadSource struct {
	data []byte
}

func (m *memReadSource) Bytes() []byte { return m.data }
func (m *memReadSource) Len() int      { return len(m.data) }
func (m *memReadSource) Close() error  { return nil }

func (d *Mem) OpenRead(path string) (ReadSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[path]
	if !ok {
		return nil, ftserr.Path(ftserr.ErrFileDoesNotExist, path, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &memReadSource{data: cp}, nil
}

type memWriter struct {
	dir  *Mem
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Flush() error {
	w.dir.mu.Lock()
	w.dir.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	w.dir.mu.Unlock()
	w.dir.notify(w.path)
	return nil
}

func (w *memWriter) Close() error { return w.Flush() }

func (d *Mem) OpenWrite(path string) (Writer, error) {
	d.mu.Lock()
	_, exists := d.files[path]
	d.mu.Unlock()
	if exists {
		return nil, ftserr.Path(ftserr.ErrFileAlreadyExists, path, nil)
	}
	return &memWriter{dir: d, path: path}, nil
}

func (d *Mem) AtomicWrite(path string, data []byte) error {
	d.mu.Lock()
	d.files[path] = append([]byte(nil), data...)
	d.mu.Unlock()
	d.notify(path)
	return nil
}

func (d *Mem) AtomicRead(path string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[path]
	if !ok {
		return nil, ftserr.Path(ftserr.ErrFileDoesNotExist, path, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (d *Mem) Delete(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[path]; !ok {
		return ftserr.Path(ftserr.ErrFileDoesNotExist, path, nil)
	}
	delete(d.files, path)
	return nil
}

func (d *Mem) Exists(path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[path]
	return ok, nil
}

type memLockGuard struct {
	dir  *Mem
	path string
	once sync.Once
}

func (g *memLockGuard) Release() error {
	g.once.Do(func() {
		g.dir.mu.Lock()
		delete(g.dir.locks, g.path)
		g.dir.mu.Unlock()
	})
	return nil
}

func (d *Mem) AcquireLock(lock LockDescriptor) (LockGuard, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, held := d.locks[lock.Path]; held {
		return nil, ftserr.ErrLockBusy
	}
	d.locks[lock.Path] = struct{}{}
	return &memLockGuard{dir: d, path: lock.Path}, nil
}

type memWatchHandle struct {
	dir  *Mem
	path string
	cb   WatchCallback
}

func (h *memWatchHandle) Close() error {
	h.dir.watchMu.Lock()
	defer h.dir.watchMu.Unlock()
	cbs := h.dir.subscribers[h.path]
	for i, c := range cbs {
		if fmt.Sprintf("%p", c) == fmt.Sprintf("%p", h.cb) {
			h.dir.subscribers[h.path] = append(cbs[:i], cbs[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Mem) Watch(path string, cb WatchCallback) (WatchHandle, error) {
	d.watchMu.Lock()
	d.subscribers[path] = append(d.subscribers[path], cb)
	d.watchMu.Unlock()
	return &memWatchHandle{dir: d, path: path, cb: cb}, nil
}

func (d *Mem) notify(path string) {
	d.watchMu.Lock()
	cbs := append([]WatchCallback(nil), d.subscribers[path]...)
	d.watchMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (d *Mem) List(kind ItemKind) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	suffix := string(kind)
	for path := range d.files {
		if strings.HasSuffix(path, suffix) {
			names = append(names, filepath.Base(path))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Mem) Close() error { return nil }
