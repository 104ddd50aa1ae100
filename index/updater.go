package index

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/directory"
	"github.com/lumenidx/ftsengine/ftserr"
	"github.com/lumenidx/ftsengine/metrics"
	"github.com/lumenidx/ftsengine/segment"
)

// publishedSegment is what an IndexingWorker hands the updater when it
// flushes a builder: the finalized segment plus enough information to
// build its initial delete bitset against tombstones already visible at
// flush time (spec.md §4.4 step 8, §4.6 "publish_segment").
type publishedSegment struct {
	meta      segment.Meta
	perDoc    segment.PerDocOpstamp
	deletedBy map[segment.Term]uint64 // term -> opstamp of the delete that matched it
}

// updaterTask is the single type flowing through the updater's task
// channel; the actor dispatches on the embedded kind. Modeled on
// bluge/index's introducerLoop, which likewise serializes every mutation
// of the live segment set through one channel read by one goroutine.
type updaterTask struct {
	kind        taskKind
	publish     publishedSegment
	commit      commitRequest
	merge       segment.MergeCandidate
	done        chan error
	snapshotOut chan []segment.Meta
	handle      *MergeHandle

	// completeMeta/completeErr carry a background merge's outcome back
	// onto the actor for taskCompleteMerge.
	completeMeta segment.Meta
	completeErr  error
}

type taskKind int

const (
	taskPublish taskKind = iota
	taskCommit
	taskRollback
	taskMerge
	taskCompleteMerge
	taskGC
	taskSnapshot
)

type commitRequest struct {
	opstamp uint64
	payload string
}

// Updater is the single-writer actor owning meta.json and the live
// segment set. Every mutation — publish, commit, rollback, merge, gc —
// is serialized through tasks, so no lock is needed around the live set
// itself (spec.md §4.6).
type Updater struct {
	dir         directory.Directory
	readerOf    segment.ReaderFactory
	builderOf   segment.BuilderFactory
	mergeFunc   segment.MergeFunc
	mergePolicy segment.MergePolicy
	heapBudget  uint64
	logger      *zap.Logger
	metrics     *metrics.Metrics

	tasks   chan updaterTask
	wg      sync.WaitGroup
	mergeWG sync.WaitGroup // outstanding background merge goroutines

	// actor-owned state; touched only from the run() goroutine.
	live             []segment.Meta
	pendingPublishes []publishedSegment
	committedOpstamp uint64
	payload          string
	inMerge          map[segment.ID]bool
	lockGuard        directory.LockGuard
}

// NewUpdater acquires the writer lock, loads meta.json (or starts from an
// empty committed set), and starts the actor goroutine. Close must be
// called to release the lock.
func NewUpdater(cfg *Config) (*Updater, error) {
	guard, err := cfg.Directory.AcquireLock(directory.LockDescriptor{Path: writerLockPath, Blocking: false})
	if err != nil {
		return nil, fmt.Errorf("index: acquiring writer lock: %w", err)
	}

	meta, _, err := loadMeta(cfg.Directory)
	if err != nil {
		_ = guard.Release()
		return nil, fmt.Errorf("index: loading meta: %w", err)
	}

	u := &Updater{
		dir:              cfg.Directory,
		readerOf:         cfg.ReaderFactory,
		builderOf:        cfg.BuilderFactory,
		mergeFunc:        cfg.MergeFunc,
		mergePolicy:      cfg.mergePolicyOrDefault(),
		heapBudget:       cfg.HeapSizePerThread,
		logger:           cfg.logger(),
		metrics:          cfg.metricsOrNop(),
		tasks:            make(chan updaterTask, 64),
		live:             append([]segment.Meta(nil), meta.Segments...),
		committedOpstamp: meta.CommittedOpstamp,
		payload:          meta.Payload,
		inMerge:          make(map[segment.ID]bool),
		lockGuard:        guard,
	}
	u.metrics.SetSegmentsAtRoot(len(u.live))

	u.wg.Add(1)
	go u.run()
	return u, nil
}

// Close lets the actor process every task already queued (so any merge
// those tasks trigger is spawned), waits for every in-flight background
// merge to post its completion, stops accepting new tasks, waits for the
// actor to drain, and releases the writer lock. Merges must finish
// posting before tasks is closed, since their completion is itself a
// send on that channel.
func (u *Updater) Close() error {
	u.LiveSegments()
	u.mergeWG.Wait()
	close(u.tasks)
	u.wg.Wait()
	return u.lockGuard.Release()
}

// Publish hands a freshly finalized segment to the actor. It does not
// block on persistence: the segment joins the live set immediately but
// meta.json is only rewritten on the next Commit.
func (u *Updater) Publish(p publishedSegment) {
	u.tasks <- updaterTask{kind: taskPublish, publish: p}
}

// Commit stamps every published segment since the last commit (and every
// delete visible up to opstamp) durable into meta.json.
func (u *Updater) Commit(opstamp uint64, payload string) error {
	done := make(chan error, 1)
	u.tasks <- updaterTask{kind: taskCommit, commit: commitRequest{opstamp: opstamp, payload: payload}, done: done}
	return <-done
}

// Rollback discards every publication since the last commit, reverting
// the live set to exactly what meta.json last recorded.
func (u *Updater) Rollback() error {
	done := make(chan error, 1)
	u.tasks <- updaterTask{kind: taskRollback, done: done}
	return <-done
}

// RequestMerge enqueues a candidate for merging; the actor rejects the
// whole candidate if any of its segments is already part of another
// in-flight merge.
func (u *Updater) RequestMerge(candidate segment.MergeCandidate) {
	u.tasks <- updaterTask{kind: taskMerge, merge: candidate}
}

// RunGC enqueues a garbage-collection pass over the directory.
func (u *Updater) RunGC() {
	u.tasks <- updaterTask{kind: taskGC}
}

// LiveSegments returns a snapshot of the current live set for merge
// policy consultation. Safe to call from any goroutine; it round-trips
// through the task channel like every other read of actor state.
func (u *Updater) LiveSegments() []segment.Meta {
	done := make(chan []segment.Meta, 1)
	u.tasks <- updaterTask{kind: taskSnapshot, snapshotOut: done}
	return <-done
}

func (u *Updater) run() {
	defer u.wg.Done()
	for t := range u.tasks {
		switch t.kind {
		case taskPublish:
			u.doPublish(t.publish)
		case taskCommit:
			err := u.doCommit(t.commit)
			if t.done != nil {
				t.done <- err
			}
		case taskRollback:
			err := u.doRollback()
			if t.done != nil {
				t.done <- err
			}
		case taskMerge:
			u.doMerge(t.merge, t.handle)
		case taskCompleteMerge:
			u.doCompleteMerge(t.merge, t.completeMeta, t.completeErr, t.handle)
		case taskGC:
			u.doGC()
			if t.done != nil {
				t.done <- nil
			}
		case taskSnapshot:
			snap := append([]segment.Meta(nil), u.live...)
			t.snapshotOut <- snap
		}
	}
}

func (u *Updater) doPublish(p publishedSegment) {
	u.live = append(u.live, p.meta)
	u.pendingPublishes = append(u.pendingPublishes, p)
	u.metrics.SetSegmentsAtRoot(len(u.live))
	u.metrics.SegmentPublished()
	u.logger.Debug("segment published", zap.String("segment_id", p.meta.ID.String()), zap.Int("max_doc", p.meta.MaxDoc))
	u.maybeScheduleMerges()
}

func (u *Updater) doCommit(req commitRequest) error {
	u.committedOpstamp = req.opstamp
	u.payload = req.payload
	u.pendingPublishes = nil
	if err := writeMeta(u.dir, Meta{Segments: u.live, CommittedOpstamp: u.committedOpstamp, Payload: u.payload}); err != nil {
		return fmt.Errorf("index: writing meta: %w", err)
	}
	u.metrics.Commit()
	u.logger.Info("commit", zap.Uint64("opstamp", req.opstamp), zap.Int("segments", len(u.live)))
	return nil
}

func (u *Updater) doRollback() error {
	meta, _, err := loadMeta(u.dir)
	if err != nil {
		return fmt.Errorf("index: reloading meta for rollback: %w", err)
	}
	for _, p := range u.pendingPublishes {
		u.removeSegmentFiles(p.meta.ID)
	}
	u.pendingPublishes = nil
	u.live = append([]segment.Meta(nil), meta.Segments...)
	u.committedOpstamp = meta.CommittedOpstamp
	u.payload = meta.Payload
	u.metrics.SetSegmentsAtRoot(len(u.live))
	return nil
}

func (u *Updater) maybeScheduleMerges() {
	var candidates []segment.Meta
	for _, m := range u.live {
		if !u.inMerge[m.ID] {
			candidates = append(candidates, m)
		}
	}
	for _, c := range u.mergePolicy.SelectMerges(candidates) {
		u.doMerge(c, nil)
	}
}

// doMerge validates candidate, marks its segments as merging, and spawns
// a background goroutine to do the actual read-merge-write work
// (spec.md §4.6: "spawns a background task... then posts a
// complete_merge task"; §5: merges run concurrently with indexing,
// serialised back onto the actor only for their completion). The actor
// itself never blocks on a merge; it moves on to the next task
// immediately after spawning.
func (u *Updater) doMerge(candidate segment.MergeCandidate, handle *MergeHandle) {
	if len(candidate.IDs) < 2 {
		u.resolveMergeHandle(handle, segment.Meta{}, fmt.Errorf("%w: merge candidate needs at least 2 segments", ftserr.ErrInvalidArgument))
		return
	}
	for _, id := range candidate.IDs {
		if u.inMerge[id] {
			u.resolveMergeHandle(handle, segment.Meta{}, fmt.Errorf("%w: segment already part of an in-flight merge", ftserr.ErrInvalidArgument))
			return
		}
	}
	for _, id := range candidate.IDs {
		u.inMerge[id] = true
	}
	u.metrics.MergeStarted()

	ids := candidate.IDs
	u.mergeWG.Add(1)
	go func() {
		defer u.mergeWG.Done()
		meta, err := u.runMerge(ids)
		u.tasks <- updaterTask{
			kind:         taskCompleteMerge,
			merge:        segment.MergeCandidate{IDs: ids},
			completeMeta: meta,
			completeErr:  err,
			handle:       handle,
		}
	}()
}

// doCompleteMerge applies a background merge's outcome on the actor
// goroutine: the only part of a merge that touches the live segment set,
// per spec.md §4.6's "complete_merge task".
func (u *Updater) doCompleteMerge(candidate segment.MergeCandidate, result segment.Meta, err error, handle *MergeHandle) {
	for _, id := range candidate.IDs {
		delete(u.inMerge, id)
	}
	if err != nil {
		u.metrics.MergeFailed()
		u.logger.Error("merge failed", zap.Error(err))
		u.resolveMergeHandle(handle, segment.Meta{}, err)
		return
	}

	if handle != nil && handle.cancelled.Load() {
		u.removeSegmentFiles(result.ID)
		u.metrics.MergeFailed()
		handle.resultCh <- mergeResult{err: ftserr.ErrCancelled}
		return
	}

	u.live = replaceSegments(u.live, candidate.IDs, result)
	u.pendingPublishes = append(u.pendingPublishes, publishedSegment{meta: result})
	u.metrics.MergeCompleted()
	u.metrics.SetSegmentsAtRoot(len(u.live))
	if handle != nil {
		handle.resultCh <- mergeResult{meta: result}
	}
}

// runMerge opens every input segment, drives the external MergeFunc
// collaborator against a fresh Builder, and finalizes the result — the
// merge-time byte combination itself is out of scope (segment.MergeFunc
// doc comment), so this is purely orchestration: open, delegate, close,
// finalize, clean up the inputs' files.
func (u *Updater) runMerge(ids []segment.ID) (segment.Meta, error) {
	readers := make([]segment.Reader, 0, len(ids))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	for _, id := range ids {
		r, err := u.readerOf(id)
		if err != nil {
			return segment.Meta{}, fmt.Errorf("index: opening merge input %s: %w", id, err)
		}
		readers = append(readers, r)
	}

	out, err := u.builderOf(segment.NewID(), u.heapBudget)
	if err != nil {
		return segment.Meta{}, fmt.Errorf("index: allocating merge output builder: %w", err)
	}
	if err := u.mergeFunc(readers, out); err != nil {
		_ = out.Close()
		return segment.Meta{}, fmt.Errorf("index: merge function: %w", err)
	}
	meta, _, err := out.Finalize()
	if err != nil {
		return segment.Meta{}, fmt.Errorf("index: finalizing merge output: %w", err)
	}

	for _, id := range ids {
		u.removeSegmentFiles(id)
	}
	return meta, nil
}

func replaceSegments(live []segment.Meta, merged []segment.ID, result segment.Meta) []segment.Meta {
	mergedSet := make(map[segment.ID]bool, len(merged))
	for _, id := range merged {
		mergedSet[id] = true
	}
	out := make([]segment.Meta, 0, len(live)-len(merged)+1)
	for _, m := range live {
		if !mergedSet[m.ID] {
			out = append(out, m)
		}
	}
	out = append(out, result)
	return out
}

// removeSegmentFiles best-effort deletes a segment's files from the
// directory; failures are logged, not returned, since rollback must make
// forward progress even if a stray file is left for a later GC pass.
func (u *Updater) removeSegmentFiles(id segment.ID) {
	for _, kind := range []directory.ItemKind{directory.KindSegment, directory.KindDeleteBS} {
		name := id.String() + string(kind)
		if err := u.dir.Delete(name); err != nil {
			u.logger.Warn("failed to remove segment file", zap.String("file", name), zap.Error(err))
		}
	}
}

func (u *Updater) doGC() {
	live := make(map[string]bool, len(u.live))
	for _, m := range u.live {
		live[m.ID.String()] = true
	}
	removed := 0
	for _, kind := range []directory.ItemKind{directory.KindSegment, directory.KindDeleteBS} {
		names, err := u.dir.List(kind)
		if err != nil {
			u.logger.Warn("gc: listing directory failed", zap.Error(err))
			continue
		}
		for _, name := range names {
			id := trimKind(name, kind)
			if live[id] {
				continue
			}
			if err := u.dir.Delete(name); err != nil {
				if !ftserr.IsNotExist(err) {
					u.logger.Warn("gc: delete failed", zap.String("file", name), zap.Error(err))
				}
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		u.metrics.GCFilesRemoved(removed)
		u.logger.Info("gc removed orphaned files", zap.Int("count", removed))
	}
}

func trimKind(name string, kind directory.ItemKind) string {
	suffix := string(kind)
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}
