package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenidx/ftsengine/metrics"
)

func TestNopMetricsTrackCounters(t *testing.T) {
	m := metrics.NewNop()

	m.SetSegmentsAtRoot(3)
	require.EqualValues(t, 3, m.SegmentsAtRoot())

	m.MergeStarted()
	m.MergeStarted()
	require.EqualValues(t, 2, m.MergesStarted())

	m.MergeCompleted()
	require.EqualValues(t, 1, m.MergesCompleted())

	m.MergeFailed()
	require.EqualValues(t, 1, m.MergesFailed())

	m.AddQueueBlocked()
	m.AddQueueBlocked()
	m.AddQueueBlocked()
	require.EqualValues(t, 3, m.AddQueueBlockedCount())

	m.SegmentPublished()
	require.EqualValues(t, 1, m.SegmentsPublished())

	m.GCFilesRemoved(5)
	m.GCFilesRemoved(2)
	require.EqualValues(t, 7, m.GCFilesRemovedCount())

	m.Commit()
	require.EqualValues(t, 1, m.Commits())
}

func TestNopMetricsCloseIsSafe(t *testing.T) {
	m := metrics.NewNop()
	require.NoError(t, m.Close())
}

func TestWithPrometheusKeepsLocalCounters(t *testing.T) {
	// httpPort 0 skips starting a listener; this exercises the scope
	// wiring without binding a socket in tests.
	m := metrics.NewWithPrometheus(nil, "ftsengine_test", 10*time.Millisecond, 0)
	defer m.Close()

	m.SegmentPublished()
	require.EqualValues(t, 1, m.SegmentsPublished())
}
