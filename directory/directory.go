// Package directory is the storage abstraction consumed by the whole
// indexing engine: open-read, open-write, atomic-write, delete, lock, and
// watch. Two implementations are provided — Mem (in-memory, for tests)
// and Mmap (file-backed, production). Both satisfy the same Directory
// interface so the rest of the engine never branches on which is in use.
package directory

import "io"

// ItemKind names a class of file for List/Remove purposes, mirroring the
// per-segment-component suffixes and the meta-file kind described in
// spec.md §6.
type ItemKind string

const (
	KindSegment  ItemKind = ".seg"
	KindDeleteBS ItemKind = ".del"
	KindMeta     ItemKind = ".meta"
	KindLock     ItemKind = ".lock"
)

// ReadSource is a shared, read-only view over a file's bytes, however
// they were obtained (mmap, or an in-memory buffer).
type ReadSource interface {
	io.Closer
	// Bytes returns the full contents. The returned slice must not be
	// retained past Close.
	Bytes() []byte
	Len() int
}

// Writer is a handle for sequential writes to a new file. Flush performs
// whatever durability steps the implementation requires (fsync of the
// file and, for file-backed directories, the parent directory) before
// returning.
type Writer interface {
	io.Writer
	io.Closer
	Flush() error
}

// LockDescriptor configures an AcquireLock call.
type LockDescriptor struct {
	// Path is relative to the directory root.
	Path string
	// Blocking requests a blocking acquire; otherwise contention returns
	// ftserr.ErrLockBusy immediately.
	Blocking bool
}

// LockGuard releases its lock exactly once, on Release. Implementations
// must make repeated Release calls safe (idempotent after the first).
type LockGuard interface {
	Release() error
}

// WatchHandle cancels a registered watch callback.
type WatchHandle interface {
	Close() error
}

// WatchCallback is invoked, at-least-once and best-effort, when the
// watched path is modified or renamed-into. Callbacks run on the watch
// dispatcher's single background goroutine and must not block.
type WatchCallback func()

// Directory is the storage contract every other component depends on.
type Directory interface {
	OpenRead(path string) (ReadSource, error)
	OpenWrite(path string) (Writer, error)

	AtomicWrite(path string, data []byte) error
	AtomicRead(path string) ([]byte, error)

	Delete(path string) error
	Exists(path string) (bool, error)

	AcquireLock(lock LockDescriptor) (LockGuard, error)

	Watch(path string, cb WatchCallback) (WatchHandle, error)

	// List enumerates the basenames of files of a given kind, for
	// SegmentUpdater's garbage collection walk.
	List(kind ItemKind) ([]string, error)

	// Close releases any resources (background watcher goroutines,
	// cached mappings) held by the directory.
	Close() error
}
