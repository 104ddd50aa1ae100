// Package deletequeue implements the broadcast log of pending deletes
// threaded through every in-flight segment build. It is a singly-linked
// list of immutable Blocks terminated by a tagged cell that is either
// still accepting writes or has been closed into the next Block — the
// idiomatic way to express a lazily materialised tail without cycles or
// back-pointers from blocks to the queue.
package deletequeue

import "sync"

// Term identifies the field value a tombstone matches against. The engine
// never interprets it; matching happens against a SegmentReader's postings,
// which is an external collaborator (see package segment).
type Term string

// Operation is a single tombstone: it matches a document iff the
// document's own opstamp is strictly less than Opstamp and the document's
// postings contain Term.
type Operation struct {
	Opstamp uint64
	Term    Term
}

// Block is an immutable, fully-populated node in the queue's list. Once
// constructed it is never mutated; only readers' positions within it
// change.
type Block struct {
	Operations []Operation
	next       *terminator
}

// terminator is the tagged cell {Writer(queue) | Closed(block)} described
// in spec.md §4.2. The transition from Writer to Closed happens at most
// once per cell, guarded by mu.
type terminator struct {
	mu     sync.Mutex
	closed bool
	block  *Block
	queue  *Queue
}

// resolve returns the Block this cell terminates into, flushing the
// queue's pending writer tail at most once. It returns nil if the cell is
// still in Writer state and there is nothing pending to flush — "end of
// queue for now".
func (t *terminator) resolve() *Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.block
	}
	blk := t.queue.flush()
	if blk == nil {
		return nil
	}
	t.closed = true
	t.block = blk
	return blk
}

// Queue is a multi-consumer broadcast log: every Cursor taken from it (or
// cloned from another cursor) walks the same sequence of operations at
// its own pace, never backward.
type Queue struct {
	mu      sync.Mutex
	pending []Operation
	tail    *terminator
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.tail = &terminator{queue: q}
	return q
}

// Push appends op to the writer tail under an exclusive lock.
func (q *Queue) Push(op Operation) {
	q.mu.Lock()
	q.pending = append(q.pending, op)
	q.mu.Unlock()
}

// flush is idempotent-on-empty: if the writer tail is empty it returns
// nil; otherwise it swaps the tail into a new immutable Block, links a
// fresh terminator as the block's next, and returns the new Block.
func (q *Queue) flush() *Block {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	ops := q.pending
	q.pending = nil
	next := &terminator{queue: q}
	blk := &Block{Operations: ops, next: next}
	q.tail = next
	q.mu.Unlock()
	return blk
}

// Cursor returns a cursor positioned past every operation currently
// visible in the queue; operations pushed after this call are reachable
// by Advance.
func (q *Queue) Cursor() *Cursor {
	q.mu.Lock()
	t := q.tail
	q.mu.Unlock()
	return &Cursor{term: t}
}

// Cursor is a cheap-to-clone, independent reading position over a Queue.
// A zero Cursor is not valid; obtain one via Queue.Cursor or Cursor.Clone.
type Cursor struct {
	block *Block
	idx   int
	term  *terminator
}

// Clone returns an independent cursor at the same position as c. Advancing
// the clone does not affect c, and vice versa.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	return &cp
}

// Get returns the operation at the current position, loading the next
// block if the cursor has been exhausted. The second return value is
// false once the end of the queue's currently-visible content is reached.
func (c *Cursor) Get() (Operation, bool) {
	for {
		if c.block == nil {
			if c.term == nil {
				return Operation{}, false
			}
			blk := c.term.resolve()
			if blk == nil {
				return Operation{}, false
			}
			c.block = blk
			c.idx = 0
			c.term = nil
		}
		if c.idx < len(c.block.Operations) {
			return c.block.Operations[c.idx], true
		}
		c.term = c.block.next
		c.block = nil
	}
}

// Advance moves the cursor one step forward if possible, returning
// whether it did.
func (c *Cursor) Advance() bool {
	if _, ok := c.Get(); !ok {
		return false
	}
	c.idx++
	return true
}

// SkipTo advances the cursor until Get returns false or yields an
// operation whose Opstamp is >= target.
func (c *Cursor) SkipTo(target uint64) {
	for {
		op, ok := c.Get()
		if !ok {
			return
		}
		if op.Opstamp >= target {
			return
		}
		c.Advance()
	}
}
