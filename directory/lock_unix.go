//go:build unix

package directory

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/lumenidx/ftsengine/ftserr"
)

// flockGuard holds an exclusive advisory lock for the lifetime of the
// writer that acquired it, released on Release (including via a deferred
// Release on panic in the caller).
type flockGuard struct {
	f    *os.File
	once sync.Once
}

func acquireFlock(path string, blocking bool) (*flockGuard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, ftserr.Path(ftserr.ErrLockIO, path, err)
	}

	how := unix.LOCK_EX
	if !blocking {
		how |= unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ftserr.ErrLockBusy
		}
		return nil, ftserr.Path(ftserr.ErrLockIO, path, err)
	}

	return &flockGuard{f: f}, nil
}

func (g *flockGuard) Release() error {
	var err error
	g.once.Do(func() {
		_ = unix.Flock(int(g.f.Fd()), unix.LOCK_UN)
		err = g.f.Close()
	})
	return err
}
