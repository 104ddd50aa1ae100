package segment

// MergeCandidate names a group of segments the SegmentUpdater should
// combine into one.
type MergeCandidate struct {
	IDs []ID
}

// MergePolicy selects which live segments should be merged. It is
// consulted after every publication. Implementations must be safe to call
// repeatedly with the same input and must never select a segment already
// part of another in-flight merge (the SegmentUpdater filters those out
// before calling SelectMerges, but policies should not assume it).
type MergePolicy interface {
	SelectMerges(live []Meta) []MergeCandidate
}

// LogTieredMergePolicy groups segments into size tiers (each tier's doc
// count is within Ratio of the tier's reference size) and proposes a merge
// whenever a tier accumulates at least MinSegmentsPerTier members,
// grounded on bluge/index/deletion.go's KeepNLatestDeletionPolicy
// bookkeeping shape, adapted from "which epochs are still live" to "which
// segments belong in the same size tier".
type LogTieredMergePolicy struct {
	MinSegmentsPerTier int
	Ratio              float64
	MaxDocsPerSegment  int
}

// NewLogTieredMergePolicy returns a policy with the teacher-style sane
// defaults: merge once three similarly-sized segments accumulate.
func NewLogTieredMergePolicy() *LogTieredMergePolicy {
	return &LogTieredMergePolicy{
		MinSegmentsPerTier: 3,
		Ratio:              2.0,
		MaxDocsPerSegment:  1 << 20,
	}
}

func (p *LogTieredMergePolicy) SelectMerges(live []Meta) []MergeCandidate {
	if len(live) < p.MinSegmentsPerTier {
		return nil
	}

	type bucket struct {
		ref  int
		ids  []ID
		docs int
	}
	var buckets []*bucket

	for _, m := range live {
		if m.MaxDoc >= p.MaxDocsPerSegment {
			continue // already at the size ceiling, never merge further
		}
		placed := false
		for _, b := range buckets {
			if fitsTier(m.MaxDoc, b.ref, p.Ratio) {
				b.ids = append(b.ids, m.ID)
				b.docs += m.MaxDoc
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, &bucket{ref: m.MaxDoc, ids: []ID{m.ID}, docs: m.MaxDoc})
		}
	}

	var out []MergeCandidate
	for _, b := range buckets {
		if len(b.ids) >= p.MinSegmentsPerTier {
			out = append(out, MergeCandidate{IDs: b.ids})
		}
	}
	return out
}

func fitsTier(docs, ref int, ratio float64) bool {
	if ref == 0 {
		return docs == 0
	}
	r := float64(docs) / float64(ref)
	return r <= ratio && r >= 1/ratio
}
