package segment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenidx/ftsengine/segment"
)

func metaWithDocs(n int) segment.Meta {
	return segment.Meta{ID: segment.NewID(), MaxDoc: n}
}

func TestLogTieredMergePolicyRequiresMinSegments(t *testing.T) {
	p := segment.NewLogTieredMergePolicy()
	live := []segment.Meta{metaWithDocs(10), metaWithDocs(10)}
	require.Empty(t, p.SelectMerges(live))
}

func TestLogTieredMergePolicyGroupsSimilarSizedSegments(t *testing.T) {
	p := segment.NewLogTieredMergePolicy()
	live := []segment.Meta{metaWithDocs(10), metaWithDocs(12), metaWithDocs(11)}
	candidates := p.SelectMerges(live)
	require.Len(t, candidates, 1)
	require.Len(t, candidates[0].IDs, 3)
}

func TestLogTieredMergePolicySeparatesDistantTiers(t *testing.T) {
	p := segment.NewLogTieredMergePolicy()
	live := []segment.Meta{
		metaWithDocs(10), metaWithDocs(10), metaWithDocs(10),
		metaWithDocs(1000), metaWithDocs(1000),
	}
	candidates := p.SelectMerges(live)
	require.Len(t, candidates, 1)
	require.Len(t, candidates[0].IDs, 3)
}

func TestLogTieredMergePolicySkipsSegmentsAtCeiling(t *testing.T) {
	p := segment.NewLogTieredMergePolicy()
	p.MaxDocsPerSegment = 100
	live := []segment.Meta{metaWithDocs(100), metaWithDocs(100), metaWithDocs(100)}
	require.Empty(t, p.SelectMerges(live))
}

func TestNewSegmentIDIsNonZeroAndFormats(t *testing.T) {
	id := segment.NewID()
	require.NotEqual(t, segment.ID{}, id)
	require.NotEmpty(t, id.String())
}

func TestDeleteBitsetWriterAccumulatesBits(t *testing.T) {
	w := segment.NewDeleteBitsetWriter()
	w.SetBit(1)
	w.SetBit(3)
	w.SetBit(3) // idempotent

	bm := w.Finalize()
	require.EqualValues(t, 2, bm.GetCardinality())
	require.True(t, bm.Contains(1))
	require.True(t, bm.Contains(3))
	require.False(t, bm.Contains(2))
}
