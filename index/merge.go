package index

import (
	"go.uber.org/atomic"

	"github.com/lumenidx/ftsengine/segment"
)

// MergeHandle is a cancellable future over one merge operation, the
// supplemental behavior original_source/ shows (a merge in flight can be
// abandoned, with its partial output cleaned up) that spec.md's
// distillation left implicit.
type MergeHandle struct {
	resultCh  chan mergeResult
	cancelled atomic.Bool
}

type mergeResult struct {
	meta segment.Meta
	err  error
}

// Cancel marks the merge as abandoned. If the merge function has not yet
// returned, its output is discarded and removed once it does; if the
// merge already completed, Cancel has no effect and Wait still returns
// the finished segment.
func (h *MergeHandle) Cancel() {
	h.cancelled.Store(true)
}

// Wait blocks until the merge completes, fails, or is cancelled. A merge
// whose Cancel was called before its outcome was applied returns
// ftserr.ErrCancelled.
func (h *MergeHandle) Wait() (segment.Meta, error) {
	r := <-h.resultCh
	return r.meta, r.err
}

// Merge enqueues candidate for merging and returns a handle the caller
// can wait on or cancel, rather than firing-and-forgetting like the
// internal merge-policy-triggered path (doMerge called from
// maybeScheduleMerges).
func (u *Updater) Merge(candidate segment.MergeCandidate) *MergeHandle {
	h := &MergeHandle{resultCh: make(chan mergeResult, 1)}
	u.tasks <- updaterTask{kind: taskMerge, merge: candidate, handle: h}
	return h
}

// resolveMergeHandle reports an error that occurred validating a
// candidate, before any background work was spawned. A successful merge's
// handle is resolved later, from doCompleteMerge, since its outcome
// depends on whether Cancel was called in the interim.
func (u *Updater) resolveMergeHandle(h *MergeHandle, meta segment.Meta, err error) {
	if h == nil {
		return
	}
	h.resultCh <- mergeResult{meta: meta, err: err}
}
