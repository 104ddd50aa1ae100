package stamper_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenidx/ftsengine/stamper"
)

func TestStampIsMonotonic(t *testing.T) {
	s := stamper.New(0)
	require.Equal(t, uint64(0), s.Stamp())
	require.Equal(t, uint64(1), s.Stamp())
	require.Equal(t, uint64(2), s.Stamp())
}

func TestStampsRange(t *testing.T) {
	s := stamper.New(5)
	start, end := s.Stamps(3)
	assert.Equal(t, uint64(5), start)
	assert.Equal(t, uint64(8), end)
	assert.Equal(t, uint64(8), s.Stamp())
}

func TestStampsEmptyBatchAdvancesNothing(t *testing.T) {
	s := stamper.New(0)
	start, end := s.Stamps(0)
	assert.Equal(t, start, end)
	assert.Equal(t, uint64(0), s.Current())
}

// TestConcurrentStampsCoverExactlyTheRange is the S1/invariant-1 property:
// for any interleaving of concurrent stampers, the multiset of returned
// stamps is exactly {initial, ..., initial+N-1} with no gaps or repeats.
func TestConcurrentStampsCoverExactlyTheRange(t *testing.T) {
	const goroutines = 64
	const perGoroutine = 200

	s := stamper.New(0)
	results := make(chan uint64, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- s.Stamp()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, goroutines*perGoroutine)
	for v := range results {
		require.False(t, seen[v], "stamp %d returned twice", v)
		seen[v] = true
	}
	require.Len(t, seen, goroutines*perGoroutine)
	for i := uint64(0); i < goroutines*perGoroutine; i++ {
		require.True(t, seen[i], "stamp %d never returned", i)
	}
}

func TestConcurrentStampsRangesDoNotOverlap(t *testing.T) {
	const goroutines = 32
	s := stamper.New(100)

	type rng struct{ start, end uint64 }
	results := make(chan rng, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			start, end := s.Stamps(n)
			results <- rng{start, end}
		}(uint64(i%5 + 1))
	}
	wg.Wait()
	close(results)

	var all []rng
	for r := range results {
		all = append(all, r)
	}
	for i := range all {
		for j := range all {
			if i == j {
				continue
			}
			overlap := all[i].start < all[j].end && all[j].start < all[i].end
			require.False(t, overlap, "ranges %+v and %+v overlap", all[i], all[j])
		}
	}
}
