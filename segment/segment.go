// Package segment declares the external collaborators this engine treats
// as opaque, per spec.md §1: a SegmentBuilder that accepts documents and
// produces immutable segment files, a SegmentReader that opens them, and
// a DeleteBitsetWriter that persists a bit set. Their internals — on-disk
// formats, tokenization, posting-list codecs — are out of scope.
package segment

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/gofrs/uuid"
)

// ID is the 128-bit identifier of an immutable on-disk segment.
type ID [16]byte

// NewID allocates a fresh random segment id.
func NewID() ID {
	u, err := uuid.NewV4()
	if err != nil {
		// uuid.NewV4 only fails if the system RNG is broken, which this
		// engine treats the same way spec.md §7 treats 64-bit stamper
		// overflow: unreachable in practice.
		panic("segment: failed to generate id: " + err.Error())
	}
	var id ID
	copy(id[:], u.Bytes())
	return id
}

func (id ID) String() string {
	u, _ := uuid.FromBytes(id[:])
	return u.String()
}

// Meta is the committed-set record for one segment.
type Meta struct {
	ID            ID
	MaxDoc        int
	DeleteOpstamp *uint64 // nil until a delete bitset has been written
	NumDeleted    *uint64
}

// Term identifies a field value to search postings for. Opaque to the
// engine beyond equality.
type Term string

// Document is the payload accepted by a SegmentBuilder. The engine never
// inspects it.
type Document any

// PerDocOpstamp associates each document added to a segment, in the order
// it was added, with the opstamp it was submitted under. Builder.Finalize
// returns this so the caller can replay deletes against it.
type PerDocOpstamp []uint64

// Builder accepts documents for one segment and reports its own memory
// usage so the indexing worker can decide when to flush.
type Builder interface {
	AddDocument(doc Document, opstamp uint64) error
	// MemoryUsage is consulted after each document is added (spec.md §4.4
	// step 5); implementations are not required to bound it precisely, only
	// to report monotonically as documents accumulate.
	MemoryUsage() uint64
	// Finalize writes out the immutable segment and returns its final
	// metadata plus the per-document opstamp order needed to compute an
	// initial delete bitset.
	Finalize() (Meta, PerDocOpstamp, error)
	// Close discards a builder whose segment will not be published. The
	// write path calls it when Finalize fails and when a merge function
	// fails; the SegmentUpdater itself never refuses a publication, so
	// in-progress builders are not discarded on that account.
	Close() error
}

// BuilderFactory allocates a fresh Builder for a new segment id.
type BuilderFactory func(id ID, heapBudget uint64) (Builder, error)

// Reader opens a finalized segment for the limited read access the write
// path itself needs: computing an initial delete bitset.
type Reader interface {
	// DocsMatching returns, in ascending local-doc-id order, the ids of
	// documents whose postings contain term.
	DocsMatching(term Term) ([]int, error)
	MaxDoc() int
	Close() error
}

// ReaderFactory opens a Reader for an already-finalized segment.
type ReaderFactory func(id ID) (Reader, error)

// DeleteBitsetWriter accumulates tombstoned local doc ids for one segment.
// It does not write anything itself; the caller persists the result as a
// new delete-bitset file alongside the segment's other (immutable) files.
type DeleteBitsetWriter interface {
	SetBit(docID int)
	// Finalize returns the accumulated bitmap; persistence into the
	// directory is the caller's responsibility (see the index package's
	// worker, which writes it on flush).
	Finalize() *roaring.Bitmap
}

// NewDeleteBitsetWriter returns the reference DeleteBitsetWriter backed by
// a roaring bitmap, as used throughout bluge/index for obsolete-doc
// tracking.
func NewDeleteBitsetWriter() DeleteBitsetWriter {
	return &roaringDeleteBitsetWriter{bm: roaring.New()}
}

type roaringDeleteBitsetWriter struct {
	bm *roaring.Bitmap
}

func (w *roaringDeleteBitsetWriter) SetBit(docID int) {
	w.bm.Add(uint32(docID))
}

func (w *roaringDeleteBitsetWriter) Finalize() *roaring.Bitmap {
	return w.bm
}
