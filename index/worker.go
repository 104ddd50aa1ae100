package index

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/deletequeue"
	"github.com/lumenidx/ftsengine/directory"
	"github.com/lumenidx/ftsengine/ftserr"
	"github.com/lumenidx/ftsengine/metrics"
	"github.com/lumenidx/ftsengine/segment"
)

// opKind tags what a channelOp asks the worker to do. Both document
// additions and flush requests travel through the same bounded channel
// so a flush always observes every add enqueued ahead of it, in order
// (spec.md §4.4's ordering requirement for prepare_commit).
type opKind int

const (
	opAdd opKind = iota
	opFlush
)

// channelOp is the unit of work an IndexingWorker reads off its add
// channel.
type channelOp struct {
	kind opKind

	doc     segment.Document
	opstamp uint64

	// flushDone receives exactly one value once the worker has finalized
	// its current builder and published the resulting segment (or
	// published nothing, if the builder was empty): nil on success, or
	// the first error (ftserr.ErrInThread) the worker accumulated since
	// its last flush (spec.md §7's "prepare_commit surfaces the first
	// worker error and aborts the commit").
	flushDone chan<- error
}

// worker drains one IndexingWorker's share of the bounded add channel
// into a sequence of SegmentBuilders, consulting its own DeleteQueue
// cursor to compute each finalized segment's initial delete bitset.
// Grounded on bluge/index's segmentWriter plumbed through bluge's
// analysisQueue, generalized to this spec's per-worker-owns-a-builder
// model (spec.md §4.4).
type worker struct {
	id int

	ops    <-chan channelOp
	cursor *deletequeue.Cursor

	builderOf  segment.BuilderFactory
	readerOf   segment.ReaderFactory
	heapBudget uint64

	dir     directory.Directory
	updater *Updater
	logger  *zap.Logger
	metrics *metrics.Metrics

	builder        segment.Builder
	segID          segment.ID
	pendingDeletes []deletequeue.Operation

	// err is the first unreported error this worker hit since its last
	// flush; takeErr clears it once reported to a caller.
	err error
}

func newWorker(id int, ops <-chan channelOp, cursor *deletequeue.Cursor, cfg *Config, updater *Updater) (*worker, error) {
	w := &worker{
		id:         id,
		ops:        ops,
		cursor:     cursor,
		builderOf:  cfg.BuilderFactory,
		readerOf:   cfg.ReaderFactory,
		heapBudget: cfg.HeapSizePerThread,
		dir:        cfg.Directory,
		updater:    updater,
		logger:     cfg.logger().With(zap.Int("worker", id)),
		metrics:    cfg.metricsOrNop(),
	}
	if err := w.newBuilder(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *worker) newBuilder() error {
	w.segID = segment.NewID()
	b, err := w.builderOf(w.segID, w.heapBudget)
	if err != nil {
		return fmt.Errorf("index: worker %d allocating builder: %w", w.id, err)
	}
	w.builder = b
	return nil
}

// run is the worker's actor loop: steps 1-9 of spec.md §4.4. It returns
// when ops is closed, after a final flush of any buffered documents.
func (w *worker) run() {
	for op := range w.ops {
		w.drainDeletes()

		switch op.kind {
		case opAdd:
			if err := w.builder.AddDocument(op.doc, op.opstamp); err != nil {
				w.recordErr(fmt.Errorf("add_document at opstamp %d: %w", op.opstamp, err))
				continue
			}
			if w.builder.MemoryUsage()+flushMargin >= w.heapBudget {
				w.flush()
			}
		case opFlush:
			w.flush()
			if op.flushDone != nil {
				op.flushDone <- w.takeErr()
			}
		}
	}
	w.flush()
}

// recordErr keeps the first error seen since the last takeErr call;
// later errors are logged but do not overwrite it, since spec.md §7 only
// surfaces the first worker error per commit attempt.
func (w *worker) recordErr(err error) {
	w.logger.Error("worker error", zap.Error(err))
	if w.err == nil {
		w.err = fmt.Errorf("%w: worker %d: %w", ftserr.ErrInThread, w.id, err)
	}
}

// takeErr returns and clears this worker's pending error, for a caller
// waiting on a flushDone signal.
func (w *worker) takeErr() error {
	err := w.err
	w.err = nil
	return err
}

// drainDeletes pulls every delete currently visible on this worker's
// cursor into pendingDeletes without blocking. Deletes are retained
// across flushes rather than cleared, since a delete with opstamp
// greater than a not-yet-indexed document's own opstamp can still need
// to apply to that document once it lands in a later segment.
func (w *worker) drainDeletes() {
	for {
		op, ok := w.cursor.Get()
		if !ok {
			return
		}
		w.pendingDeletes = append(w.pendingDeletes, op)
		w.cursor.Advance()
	}
}

// flush finalizes the current builder (if it has buffered any
// documents), computes its initial delete bitset against pendingDeletes,
// persists the bitset, publishes the segment to the updater, and starts
// a fresh builder for the next batch.
func (w *worker) flush() {
	if w.builder.MemoryUsage() == 0 {
		return
	}

	meta, perDoc, err := w.builder.Finalize()
	if err != nil {
		w.recordErr(fmt.Errorf("finalize segment %s: %w", w.segID, err))
		_ = w.builder.Close()
		_ = w.newBuilder()
		return
	}

	if len(w.pendingDeletes) > 0 {
		if err := w.applyInitialDeletes(&meta, perDoc); err != nil {
			w.logger.Error("applying initial deletes failed", zap.Error(err), zap.String("segment_id", meta.ID.String()))
		}
	}

	w.updater.Publish(publishedSegment{meta: meta, perDoc: perDoc})

	if err := w.newBuilder(); err != nil {
		w.logger.Error("allocating next builder failed", zap.Error(err))
	}
}

func (w *worker) applyInitialDeletes(meta *segment.Meta, perDoc segment.PerDocOpstamp) error {
	reader, err := w.readerOf(meta.ID)
	if err != nil {
		return fmt.Errorf("opening finalized segment for delete application: %w", err)
	}
	defer reader.Close()

	bw := segment.NewDeleteBitsetWriter()
	var maxOpstamp uint64
	for _, del := range w.pendingDeletes {
		matches, err := reader.DocsMatching(segment.Term(del.Term))
		if err != nil {
			return fmt.Errorf("matching delete term %q: %w", del.Term, err)
		}
		for _, docID := range matches {
			if docID < 0 || docID >= len(perDoc) {
				continue
			}
			if perDoc[docID] < del.Opstamp {
				bw.SetBit(docID)
			}
		}
		if del.Opstamp > maxOpstamp {
			maxOpstamp = del.Opstamp
		}
	}

	bm := bw.Finalize()
	if bm.IsEmpty() {
		return nil
	}
	data, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("serializing delete bitset: %w", err)
	}
	if err := w.dir.AtomicWrite(meta.ID.String()+string(directory.KindDeleteBS), data); err != nil {
		return fmt.Errorf("persisting delete bitset: %w", err)
	}

	n := bm.GetCardinality()
	meta.DeleteOpstamp = &maxOpstamp
	meta.NumDeleted = &n
	return nil
}
