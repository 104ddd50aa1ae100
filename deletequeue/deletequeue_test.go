package deletequeue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenidx/ftsengine/deletequeue"
)

func TestCursorSeesNothingBeforePush(t *testing.T) {
	q := deletequeue.New()
	c := q.Cursor()
	_, ok := c.Get()
	assert.False(t, ok)
}

func TestPushThenGet(t *testing.T) {
	q := deletequeue.New()
	c := q.Cursor()

	q.Push(deletequeue.Operation{Opstamp: 1, Term: "a"})
	op, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, deletequeue.Operation{Opstamp: 1, Term: "a"}, op)

	// Get is idempotent until Advance is called.
	op2, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, op, op2)
}

func TestAdvanceWalksForward(t *testing.T) {
	q := deletequeue.New()
	c := q.Cursor()

	q.Push(deletequeue.Operation{Opstamp: 1, Term: "a"})
	q.Push(deletequeue.Operation{Opstamp: 2, Term: "b"})

	op, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), op.Opstamp)

	require.True(t, c.Advance())
	op, ok = c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(2), op.Opstamp)

	require.False(t, c.Advance())
	_, ok = c.Get()
	assert.False(t, ok)
}

func TestSkipTo(t *testing.T) {
	q := deletequeue.New()
	c := q.Cursor()
	for i := uint64(1); i <= 10; i++ {
		q.Push(deletequeue.Operation{Opstamp: i, Term: "t"})
	}

	c.SkipTo(5)
	op, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(5), op.Opstamp)

	// Skipping past the end leaves Get() false.
	c.SkipTo(1000)
	_, ok = c.Get()
	assert.False(t, ok)
}

// TestBroadcastIndependentCursors is invariant 7: two cursors taken at the
// same point observe identical sequences; a clone begins at the same
// position and advances independently.
func TestBroadcastIndependentCursors(t *testing.T) {
	q := deletequeue.New()
	c1 := q.Cursor()

	q.Push(deletequeue.Operation{Opstamp: 1, Term: "a"})
	q.Push(deletequeue.Operation{Opstamp: 2, Term: "b"})

	c2 := q.Cursor()
	clone := c1.Clone()

	for _, c := range []*deletequeue.Cursor{c1, c2, clone} {
		op, ok := c.Get()
		require.True(t, ok)
		assert.Equal(t, uint64(1), op.Opstamp)
	}

	// Advancing c1 must not move clone or c2.
	c1.Advance()
	op, ok := c1.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(2), op.Opstamp)

	op, ok = clone.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), op.Opstamp, "clone must not be affected by advancing its source")

	op, ok = c2.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), op.Opstamp)
}

func TestMultipleFlushesProduceOrderedBlocks(t *testing.T) {
	q := deletequeue.New()
	c := q.Cursor()

	q.Push(deletequeue.Operation{Opstamp: 1})
	q.Push(deletequeue.Operation{Opstamp: 2})
	// first Get() triggers a flush of [1,2] into a block.
	op, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), op.Opstamp)

	// push more after the first flush; these land in a new block.
	q.Push(deletequeue.Operation{Opstamp: 3})

	c.Advance() // -> op 2
	c.Advance() // -> op 3, crossing into the second block
	op, ok = c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(3), op.Opstamp)
}

func TestCursorLaterThanExistingOpsStartsPastThem(t *testing.T) {
	q := deletequeue.New()
	q.Push(deletequeue.Operation{Opstamp: 1})
	q.Push(deletequeue.Operation{Opstamp: 2})

	// force a flush so there is already a closed block in the list
	warm := q.Cursor()
	warm.Get()

	late := q.Cursor()
	_, ok := late.Get()
	assert.False(t, ok, "a cursor taken later must not replay already-visible operations")

	q.Push(deletequeue.Operation{Opstamp: 3})
	op, ok := late.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(3), op.Opstamp)
}
