// Package stamper hands out the strictly monotonic 64-bit operation ids
// ("opstamps") that order every add, delete, and batch across the write
// path. See Stamper.Stamp and Stamper.Stamps.
package stamper

import "go.uber.org/atomic"

// Stamper is safe for concurrent use. Every value or range it returns is
// globally unique, and the union of all returned values is exactly
// [initial, current) with no gaps, regardless of how callers interleave.
type Stamper struct {
	next atomic.Uint64
}

// New returns a Stamper whose first Stamp() call yields initial.
func New(initial uint64) *Stamper {
	s := &Stamper{}
	s.next.Store(initial)
	return s
}

// Stamp returns the current counter value and advances it by one.
func (s *Stamper) Stamp() uint64 {
	return s.next.Add(1) - 1
}

// Stamps returns a half-open range [start, start+n) and advances the
// counter by n. Passing n=0 still reserves one slot past the current
// value is NOT performed here; callers that need "an empty batch still
// consumes one stamp" semantics (spec §4.5 run()) must call Stamp/Stamps
// with n=1 explicitly for the trailing batch stamp.
func (s *Stamper) Stamps(n uint64) (start, end uint64) {
	if n == 0 {
		cur := s.next.Load()
		return cur, cur
	}
	end = s.next.Add(n)
	start = end - n
	return start, end
}

// Current returns the next value that would be handed out, without
// consuming it. Useful for tests and diagnostics only.
func (s *Stamper) Current() uint64 {
	return s.next.Load()
}
