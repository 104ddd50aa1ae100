// Package ftserr defines the error taxonomy shared by every component of
// the indexing write path. Components wrap one of these sentinels with
// fmt.Errorf's %w verb so callers can still recover the kind with
// errors.Is after the path/cause context has been attached.
package ftserr

import "errors"

var (
	// ErrFileDoesNotExist is returned by Directory.OpenRead/Delete/AtomicRead
	// when the named file is not present.
	ErrFileDoesNotExist = errors.New("file does not exist")

	// ErrFileAlreadyExists is returned by Directory.OpenWrite on an
	// exclusive-create collision.
	ErrFileAlreadyExists = errors.New("file already exists")

	// ErrIO wraps any other underlying I/O failure. Always combined with a
	// path-tagged message by the caller.
	ErrIO = errors.New("i/o error")

	// ErrLockBusy is returned by a non-blocking Directory.AcquireLock call
	// when another process holds the lock.
	ErrLockBusy = errors.New("lock busy")

	// ErrLockIO is returned when lock acquisition fails for an I/O reason
	// unrelated to contention.
	ErrLockIO = errors.New("lock i/o error")

	// ErrInvalidArgument marks programmer error, e.g. a heap budget outside
	// [HeapMin, HeapMax].
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInThread wraps a failure raised inside a worker or merge goroutine.
	ErrInThread = errors.New("error in thread")

	// ErrCancelled is returned by a merge future that was cancelled before
	// completion.
	ErrCancelled = errors.New("cancelled")
)

// Path wraps err with a path-tagged message, preserving errors.Is/As against
// the sentinel.
func Path(kind error, path string, cause error) error {
	if cause == nil {
		return &pathError{kind: kind, path: path}
	}
	return &pathError{kind: kind, path: path, cause: cause}
}

type pathError struct {
	kind  error
	path  string
	cause error
}

func (e *pathError) Error() string {
	if e.cause == nil {
		return e.kind.Error() + ": " + e.path
	}
	return e.kind.Error() + ": " + e.path + ": " + e.cause.Error()
}

func (e *pathError) Unwrap() error {
	return e.kind
}

func (e *pathError) Cause() error {
	return e.cause
}

// IsNotExist reports whether err is, or wraps, ErrFileDoesNotExist.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrFileDoesNotExist)
}
