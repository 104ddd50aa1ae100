// Package segtest is a minimal, in-memory reference implementation of the
// segment package's external contracts (Builder, Reader). It is
// deliberately not a real posting-list codec — spec.md §1 places that out
// of scope — but it is sufficient to drive the indexing pipeline end to
// end in tests, the way the teacher's own test helpers stub out storage
// and network collaborators rather than hitting real backends.
package segtest

import (
	"sync"

	"github.com/lumenidx/ftsengine/ftserr"
	"github.com/lumenidx/ftsengine/segment"
)

// Doc is the concrete Document type segtest understands: a flat list of
// terms the document's postings contain.
type Doc struct {
	Terms []segment.Term
}

type storedSegment struct {
	docTerms [][]segment.Term // index = local doc id
}

// Store is a shared fake backing store for Builder/Reader factories, akin
// to a single in-memory Directory dedicated to segment bytes.
type Store struct {
	mu       sync.Mutex
	segments map[segment.ID]*storedSegment
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{segments: make(map[segment.ID]*storedSegment)}
}

// BuilderFactory returns a segment.BuilderFactory backed by this store.
func (s *Store) BuilderFactory() segment.BuilderFactory {
	return func(id segment.ID, heapBudget uint64) (segment.Builder, error) {
		return &builder{store: s, id: id, heapBudget: heapBudget}, nil
	}
}

// ReaderFactory returns a segment.ReaderFactory backed by this store.
func (s *Store) ReaderFactory() segment.ReaderFactory {
	return func(id segment.ID) (segment.Reader, error) {
		s.mu.Lock()
		seg, ok := s.segments[id]
		s.mu.Unlock()
		if !ok {
			return nil, ftserr.Path(ftserr.ErrFileDoesNotExist, id.String(), nil)
		}
		return &reader{seg: seg}, nil
	}
}

// MergeFunc returns a segment.MergeFunc that copies every document from
// every input reader into output, in input order. Real merge-time byte
// combination is out of scope (segment.MergeFunc's doc comment); this is
// only enough to exercise the updater's merge orchestration in tests.
func (s *Store) MergeFunc() segment.MergeFunc {
	return func(inputs []segment.Reader, output segment.Builder) error {
		for _, in := range inputs {
			r, ok := in.(*reader)
			if !ok {
				continue
			}
			for _, terms := range r.seg.docTerms {
				if err := output.AddDocument(Doc{Terms: terms}, 0); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// approxBytesPerDoc is a stand-in for a real posting-list builder's memory
// growth, used only so tests can exercise the heap-budget flush path
// deterministically.
const approxBytesPerDoc = 256

type builder struct {
	store      *Store
	id         segment.ID
	heapBudget uint64
	docTerms   [][]segment.Term
	opstamps   segment.PerDocOpstamp
	closed     bool
}

func (b *builder) AddDocument(doc segment.Document, opstamp uint64) error {
	d, _ := doc.(Doc)
	b.docTerms = append(b.docTerms, d.Terms)
	b.opstamps = append(b.opstamps, opstamp)
	return nil
}

func (b *builder) MemoryUsage() uint64 {
	return uint64(len(b.docTerms)) * approxBytesPerDoc
}

func (b *builder) Finalize() (segment.Meta, segment.PerDocOpstamp, error) {
	b.store.mu.Lock()
	b.store.segments[b.id] = &storedSegment{docTerms: b.docTerms}
	b.store.mu.Unlock()

	return segment.Meta{ID: b.id, MaxDoc: len(b.docTerms)}, b.opstamps, nil
}

func (b *builder) Close() error {
	b.closed = true
	return nil
}

type reader struct {
	seg *storedSegment
}

func (r *reader) DocsMatching(term segment.Term) ([]int, error) {
	var ids []int
	for docID, terms := range r.seg.docTerms {
		for _, t := range terms {
			if t == term {
				ids = append(ids, docID)
				break
			}
		}
	}
	return ids, nil
}

func (r *reader) MaxDoc() int { return len(r.seg.docTerms) }

func (r *reader) Close() error { return nil }
