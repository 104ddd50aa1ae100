// Package index implements the write path's core actors: the indexing
// pipeline (worker fleet over a bounded add-channel), the IndexWriter
// public surface, and the SegmentUpdater single-writer actor — grounded
// on blugelabs/bluge/index (writer.go, introducer.go, merge.go,
// deletion.go) generalized from bluge's single-introducer-applies-
// pre-built-segments model to this spec's per-worker-owns-a-SegmentBuilder
// model.
package index

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/directory"
	"github.com/lumenidx/ftsengine/ftserr"
	"github.com/lumenidx/ftsengine/metrics"
	"github.com/lumenidx/ftsengine/segment"
)

const (
	// HeapMin and HeapMax bound the per-thread memory budget a caller may
	// configure (spec.md §4.4).
	HeapMin uint64 = 3 * 1024 * 1024
	HeapMax uint64 = (uint64(1)<<32 - 1) * (1024 * 1024) - 1

	// flushMargin is subtracted from the heap budget before comparing
	// against a builder's reported memory usage (spec.md §4.4 step 5).
	flushMargin uint64 = 1024 * 1024

	// defaultChannelCapacity is the bounded add-channel's capacity, in
	// documents, per spec.md §4.4.
	defaultChannelCapacity = 10000

	// maxHashTableBits is the largest k spec.md §4.4's sizing formula
	// allows.
	maxHashTableBits = 19

	// hashTableEntryBytes is the per-entry cost used by HashTableBits; the
	// exact posting-table layout is an internal SegmentBuilder concern
	// (out of scope per spec.md §1), so this is a representative constant
	// rather than a measured one.
	hashTableEntryBytes uint64 = 16

	metaFileName  = "meta.json"
	writerLockPath = ".ftsengine-writer.lock"
)

// Config wires every collaborator an IndexWriter needs. All fields are
// required except Logger and Metrics, which default to no-ops,
// MergePolicy, which defaults to NewLogTieredMergePolicy, and
// ChannelCapacity, which defaults to defaultChannelCapacity.
type Config struct {
	Directory      directory.Directory
	BuilderFactory segment.BuilderFactory
	ReaderFactory  segment.ReaderFactory
	MergeFunc      segment.MergeFunc
	MergePolicy    segment.MergePolicy

	HeapSizePerThread uint64
	NumThreads        int
	ChannelCapacity   int // 0 means defaultChannelCapacity

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Validate checks the fields a programmer, not the environment, controls.
func (c *Config) Validate() error {
	if c.Directory == nil {
		return fmt.Errorf("%w: Directory is required", ftserr.ErrInvalidArgument)
	}
	if c.BuilderFactory == nil {
		return fmt.Errorf("%w: BuilderFactory is required", ftserr.ErrInvalidArgument)
	}
	if c.ReaderFactory == nil {
		return fmt.Errorf("%w: ReaderFactory is required", ftserr.ErrInvalidArgument)
	}
	if c.MergeFunc == nil {
		return fmt.Errorf("%w: MergeFunc is required", ftserr.ErrInvalidArgument)
	}
	if c.HeapSizePerThread < HeapMin || c.HeapSizePerThread > HeapMax {
		return fmt.Errorf("%w: heap_size_per_thread %d out of range [%d, %d]",
			ftserr.ErrInvalidArgument, c.HeapSizePerThread, HeapMin, HeapMax)
	}
	if c.NumThreads <= 0 {
		return fmt.Errorf("%w: NumThreads must be positive", ftserr.ErrInvalidArgument)
	}
	return nil
}

func (c *Config) channelCapacity() int {
	if c.ChannelCapacity > 0 {
		return c.ChannelCapacity
	}
	return defaultChannelCapacity
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Config) metricsOrNop() *metrics.Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return metrics.NewNop()
}

func (c *Config) mergePolicyOrDefault() segment.MergePolicy {
	if c.MergePolicy != nil {
		return c.MergePolicy
	}
	return segment.NewLogTieredMergePolicy()
}

// HashTableBits returns the largest k <= 19 such that a 2^k-entry hash
// table fits within heap/3, per spec.md §4.4.
func HashTableBits(heap uint64) int {
	budget := heap / 3
	best := 0
	for k := 0; k <= maxHashTableBits; k++ {
		size := (uint64(1) << uint(k)) * hashTableEntryBytes
		if size > budget {
			break
		}
		best = k
	}
	return best
}
