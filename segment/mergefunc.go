package segment

// MergeFunc combines the content of several already-open input segments
// into output, which the caller finalizes afterward. Merge-time byte-level
// file combination is out of scope for this engine (spec.md §1); this is
// the external collaborator contract the SegmentUpdater drives.
type MergeFunc func(inputs []Reader, output Builder) error
