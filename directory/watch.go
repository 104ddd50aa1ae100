package directory

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/ftserr"
)

// debounceWindow coalesces bursts of writes (e.g. temp-file write followed
// immediately by the atomic rename) into a single callback invocation.
const debounceWindow = 50 * time.Millisecond

// WatchRouter dispatches filesystem change events observed under one root
// directory to per-path subscriber sets, on a single background
// goroutine. Callbacks fire at-least-once per observed event and may
// coalesce across debounce windows.
type WatchRouter struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu          sync.Mutex
	subscribers map[string][]*subscription
	pending     map[string]*time.Timer

	closeCh chan struct{}
	done    chan struct{}
}

type subscription struct {
	path string
	cb   WatchCallback
}

func newWatchRouter(root string, logger *zap.Logger) (*WatchRouter, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ftserr.Path(ftserr.ErrIO, root, err)
	}
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, ftserr.Path(ftserr.ErrIO, root, err)
	}

	r := &WatchRouter{
		watcher:     w,
		logger:      logger,
		subscribers: make(map[string][]*subscription),
		pending:     make(map[string]*time.Timer),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *WatchRouter) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.closeCh:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.scheduleDispatch(ev.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("directory watch error", zap.Error(err))
		}
	}
}

// scheduleDispatch debounces repeated events on the same path within
// debounceWindow before firing subscriber callbacks.
func (r *WatchRouter) scheduleDispatch(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.pending[path]; ok {
		t.Reset(debounceWindow)
		return
	}
	r.pending[path] = time.AfterFunc(debounceWindow, func() {
		r.mu.Lock()
		delete(r.pending, path)
		subs := append([]*subscription(nil), r.subscribers[path]...)
		r.mu.Unlock()
		for _, s := range subs {
			s.cb()
		}
	})
}

type watchHandle struct {
	router *WatchRouter
	sub    *subscription
}

func (h *watchHandle) Close() error {
	h.router.mu.Lock()
	defer h.router.mu.Unlock()
	subs := h.router.subscribers[h.sub.path]
	for i, s := range subs {
		if s == h.sub {
			h.router.subscribers[h.sub.path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (r *WatchRouter) subscribe(path string, cb WatchCallback) (WatchHandle, error) {
	sub := &subscription{path: path, cb: cb}
	r.mu.Lock()
	r.subscribers[path] = append(r.subscribers[path], sub)
	r.mu.Unlock()
	return &watchHandle{router: r, sub: sub}, nil
}

func (r *WatchRouter) close() error {
	close(r.closeCh)
	err := r.watcher.Close()
	<-r.done
	return err
}
