package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
	"go.uber.org/zap"
)

// PrometheusReporter exposes a Metrics' counters/gauges for scraping,
// grounded directly on the teacher's server/metrics.go NewMetrics wiring
// (tally root scope backed by the Prometheus reporter, with an optional
// dedicated HTTP listener).
type PrometheusReporter struct {
	scope  tally.Scope
	closer io.Closer
	server *http.Server

	segmentsAtRoot    tally.Gauge
	mergesStarted     tally.Counter
	mergesCompleted   tally.Counter
	mergesFailed      tally.Counter
	addQueueBlocked   tally.Counter
	segmentsPublished tally.Counter
	gcFilesRemoved    tally.Counter
	commits           tally.Counter
}

// NewWithPrometheus returns a Metrics whose updates are mirrored into a
// tally scope backed by the Prometheus reporter. If httpPort > 0, a
// dedicated HTTP server is started to serve /metrics.
func NewWithPrometheus(logger *zap.Logger, namespace string, reportingInterval time.Duration, httpPort int) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	reporter := promreporter.NewReporter(promreporter.Options{
		OnRegisterError: func(err error) {
			logger.Error("error registering prometheus metric", zap.Error(err))
		},
	})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:          namespace,
		CachedReporter:  reporter,
		Separator:       promreporter.DefaultSeparator,
		SanitizeOptions: &promreporter.DefaultSanitizerOpts,
	}, reportingInterval)

	r := &PrometheusReporter{
		scope:             scope,
		closer:            closer,
		segmentsAtRoot:    scope.Gauge("segments_at_root"),
		mergesStarted:     scope.Counter("merges_started"),
		mergesCompleted:   scope.Counter("merges_completed"),
		mergesFailed:      scope.Counter("merges_failed"),
		addQueueBlocked:   scope.Counter("addqueue_blocked"),
		segmentsPublished: scope.Counter("segments_published"),
		gcFilesRemoved:    scope.Counter("gc_files_removed"),
		commits:           scope.Counter("commits"),
	}

	if httpPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reporter.HTTPHandler())
		r.server = &http.Server{Addr: ":" + strconv.Itoa(httpPort), Handler: mux}
		go func() {
			if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("prometheus listener failed", zap.Error(err))
			}
		}()
	}

	m := NewNop()
	m.reporter = r
	return m
}

// Close stops the optional HTTP listener and the tally reporter's
// background flush loop.
func (m *Metrics) Close() error {
	if m.reporter == nil {
		return nil
	}
	if m.reporter.server != nil {
		_ = m.reporter.server.Close()
	}
	return m.reporter.closer.Close()
}
