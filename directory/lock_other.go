//go:build !unix

package directory

import (
	"os"
	"sync"

	"github.com/lumenidx/ftsengine/ftserr"
)

// flockGuard on non-unix platforms falls back to exclusive-create
// semantics on the lock file itself: there is no portable blocking
// advisory lock in the standard library, so "blocking" degenerates to a
// single attempt followed by ErrLockBusy, same as the non-blocking path.
type flockGuard struct {
	path string
	once sync.Once
}

func acquireFlock(path string, _ bool) (*flockGuard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ftserr.ErrLockBusy
		}
		return nil, ftserr.Path(ftserr.ErrLockIO, path, err)
	}
	_ = f.Close()
	return &flockGuard{path: path}, nil
}

func (g *flockGuard) Release() error {
	var err error
	g.once.Do(func() {
		err = os.Remove(g.path)
	})
	return err
}
