package index

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/deletequeue"
	"github.com/lumenidx/ftsengine/ftserr"
	"github.com/lumenidx/ftsengine/metrics"
	"github.com/lumenidx/ftsengine/segment"
	"github.com/lumenidx/ftsengine/stamper"
)

// Writer is the engine's public write-path surface: add_document,
// delete_term, run, prepare_commit, commit, rollback,
// wait_merging_threads, and merge (spec.md §4.5). One Writer owns the
// writer lock for its Directory; a second Writer over the same
// Directory fails to construct with ftserr.ErrLockBusy.
type Writer struct {
	cfg     *Config
	stamper *stamper.Stamper
	queue   *deletequeue.Queue
	updater *Updater
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	ch      chan channelOp
	workers []*worker
	wg      sync.WaitGroup
}

// Open validates cfg, recovers the committed opstamp from meta.json (if
// present), and returns a Writer ready for Start. It acquires the writer
// lock; Close releases it.
func Open(cfg *Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	updater, err := NewUpdater(cfg)
	if err != nil {
		return nil, err
	}

	committed := uint64(0)
	if meta, ok, err := loadMeta(cfg.Directory); err != nil {
		_ = updater.Close()
		return nil, fmt.Errorf("index: loading meta: %w", err)
	} else if ok {
		committed = meta.CommittedOpstamp
	}

	w := &Writer{
		cfg:     cfg,
		stamper: stamper.New(committed),
		queue:   deletequeue.New(),
		updater: updater,
		logger:  cfg.logger(),
		metrics: cfg.metricsOrNop(),
	}
	return w, nil
}

// Updater exposes the Writer's SegmentUpdater for diagnostics and tests;
// application code should prefer Commit/RunGC/Merge over driving it
// directly.
func (w *Writer) Updater() *Updater {
	return w.updater
}

// Start launches the worker fleet, one goroutine per cfg.NumThreads,
// sharing the bounded add channel. Must be called once, before
// AddDocument, DeleteTerm, or Run.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("%w: Start already called", ftserr.ErrInvalidArgument)
	}

	w.ch = make(chan channelOp, w.cfg.channelCapacity())
	w.workers = make([]*worker, 0, w.cfg.NumThreads)
	for i := 0; i < w.cfg.NumThreads; i++ {
		cursor := w.queue.Cursor()
		wk, err := newWorker(i, w.ch, cursor, w.cfg, w.updater)
		if err != nil {
			return err
		}
		w.workers = append(w.workers, wk)
		w.wg.Add(1)
		go func(wk *worker) {
			defer w.wg.Done()
			wk.run()
		}(wk)
	}
	w.running = true
	return nil
}

// AddDocument enqueues doc for indexing under a freshly stamped opstamp
// and returns it. Blocks if the shared add channel is full
// (backpressure, spec.md §4.4), recording the stall in metrics.
func (w *Writer) AddDocument(doc segment.Document) (uint64, error) {
	if !w.running {
		return 0, fmt.Errorf("%w: Start has not been called", ftserr.ErrInvalidArgument)
	}
	opstamp := w.stamper.Stamp()
	w.send(channelOp{kind: opAdd, doc: doc, opstamp: opstamp})
	return opstamp, nil
}

// DeleteTerm pushes a tombstone matching term into the broadcast delete
// queue, stamped with a fresh opstamp: only documents already indexed
// under a strictly lesser opstamp are affected (spec.md §4.2, §4.3).
func (w *Writer) DeleteTerm(term segment.Term) uint64 {
	opstamp := w.stamper.Stamp()
	w.queue.Push(deletequeue.Operation{Opstamp: opstamp, Term: deletequeue.Term(term)})
	return opstamp
}

// UserOperationKind tags which field of a UserOperation is meaningful.
type UserOperationKind int

const (
	OpKindAdd UserOperationKind = iota
	OpKindDelete
)

// UserOperation is the tagged variant {Add(document), Delete(term)} a
// batch passed to Run is made of (spec.md §3).
type UserOperation struct {
	Kind     UserOperationKind
	Document segment.Document
	Term     segment.Term
}

// Run draws len(ops)+1 contiguous opstamps, assigns the first len(ops) to
// the operations in order — deletes go straight to the DeleteQueue, adds
// are sent to the worker fleet as one batch — and returns the trailing
// stamp. An empty batch still consumes one stamp, so two successive
// Run(nil) calls return distinct values (spec.md §4.5).
func (w *Writer) Run(ops []UserOperation) (uint64, error) {
	if !w.running {
		return 0, fmt.Errorf("%w: Start has not been called", ftserr.ErrInvalidArgument)
	}
	start, end := w.stamper.Stamps(uint64(len(ops)) + 1)
	for i, op := range ops {
		opstamp := start + uint64(i)
		switch op.Kind {
		case OpKindDelete:
			w.queue.Push(deletequeue.Operation{Opstamp: opstamp, Term: deletequeue.Term(op.Term)})
		default:
			w.send(channelOp{kind: opAdd, doc: op.Document, opstamp: opstamp})
		}
	}
	return end - 1, nil
}

func (w *Writer) send(op channelOp) {
	select {
	case w.ch <- op:
	default:
		w.metrics.AddQueueBlocked()
		w.ch <- op
	}
}

// PrepareCommit stamps a trailing batch opstamp (consumed even if no
// documents follow, per spec.md §4.5's "an empty batch still consumes
// one stamp"), forces every worker to flush its current builder so the
// resulting segment set reflects every add submitted so far, and returns
// the opstamp that Commit should be called with. If any worker hit an
// error (on add_document or on finalizing its segment) since its last
// flush, that first error aborts the commit and is returned instead,
// per spec.md §7's propagation policy.
func (w *Writer) PrepareCommit() (uint64, error) {
	if !w.running {
		return 0, fmt.Errorf("%w: Start has not been called", ftserr.ErrInvalidArgument)
	}
	batchStamp := w.stamper.Stamp()

	dones := make([]chan error, len(w.workers))
	for i := range w.workers {
		done := make(chan error, 1)
		dones[i] = done
		w.send(channelOp{kind: opFlush, flushDone: done})
	}
	var firstErr error
	for _, done := range dones {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return 0, firstErr
	}
	return batchStamp, nil
}

// Commit calls PrepareCommit and then durably records the committed
// opstamp and payload into meta.json. payload is opaque application data
// round-tripped unchanged through Meta.Payload (the commit-payload
// round-trip behavior original_source/ exercises).
func (w *Writer) Commit(payload string) (uint64, error) {
	opstamp, err := w.PrepareCommit()
	if err != nil {
		return 0, err
	}
	if err := w.updater.Commit(opstamp, payload); err != nil {
		return 0, err
	}
	return opstamp, nil
}

// Rollback discards every segment published since the last commit and
// resets the Writer's in-memory opstamp bookkeeping to match. In-flight
// worker builders are discarded and replaced; any document added during
// the rollback window is lost, matching spec.md §4.5's "rollback
// abandons, not rewinds, the stamper".
func (w *Writer) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.ch)
		w.wg.Wait()
	}
	if err := w.updater.Rollback(); err != nil {
		return err
	}
	w.queue = deletequeue.New()

	if w.running {
		w.ch = make(chan channelOp, w.cfg.channelCapacity())
		w.workers = make([]*worker, 0, w.cfg.NumThreads)
		for i := 0; i < w.cfg.NumThreads; i++ {
			cursor := w.queue.Cursor()
			wk, err := newWorker(i, w.ch, cursor, w.cfg, w.updater)
			if err != nil {
				return err
			}
			w.workers = append(w.workers, wk)
			w.wg.Add(1)
			go func(wk *worker) {
				defer w.wg.Done()
				wk.run()
			}(wk)
		}
	}
	return nil
}

// Merge requests a merge of the given segment candidate and returns a
// cancellable handle. The read-merge-write work runs on its own
// background goroutine, concurrently with indexing and with any other
// task the updater actor processes meanwhile; only the outcome is
// serialised back through the actor's task queue (spec.md §4.6, §5).
func (w *Writer) Merge(candidate segment.MergeCandidate) *MergeHandle {
	return w.updater.Merge(candidate)
}

// WaitMergingThreads blocks until every merge requested so far (whether
// policy-triggered or explicit, via Merge) has finished its background
// work and the updater actor has applied its outcome to the live set.
func (w *Writer) WaitMergingThreads() {
	// Round-trip through the actor first so every merge already queued
	// (explicit or policy-triggered) has been spawned and counted.
	w.updater.LiveSegments()
	w.updater.mergeWG.Wait()
	w.updater.LiveSegments()
}

// RunGC enqueues a garbage-collection pass removing any segment or
// delete-bitset file not referenced by the live segment set.
func (w *Writer) RunGC() {
	w.updater.RunGC()
}

// Close stops the worker fleet and releases the writer lock. Any
// buffered but uncommitted segments remain on disk as orphans for the
// next GC pass to clean up; callers that want them durable must Commit
// first.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.running {
		close(w.ch)
		w.wg.Wait()
		w.running = false
	}
	w.mu.Unlock()
	return w.updater.Close()
}
