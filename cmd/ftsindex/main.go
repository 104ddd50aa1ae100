// Command ftsindex is a minimal driver for the indexing engine: it opens
// a Writer over an on-disk directory, reads newline-delimited JSON
// documents from stdin, indexes them, and commits. It exists to exercise
// the public Writer surface end to end, the way the teacher ships a
// small cmd/ entry point alongside its server package.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lumenidx/ftsengine/directory"
	"github.com/lumenidx/ftsengine/ftsconfig"
	"github.com/lumenidx/ftsengine/ftslog"
	"github.com/lumenidx/ftsengine/index"
	"github.com/lumenidx/ftsengine/metrics"
	"github.com/lumenidx/ftsengine/segment"
	"github.com/lumenidx/ftsengine/segtest"
)

// jsonDoc is the concrete Document type this command indexes: a bag of
// terms read from one line of JSON on stdin, e.g. {"terms":["go","fts"]}.
type jsonDoc struct {
	Terms []string `json:"terms"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ftsindex:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := ftsconfig.ParseArgs(args)
	if err != nil {
		return err
	}

	logger, err := ftslog.Setup(cfg.LoggerConfig())
	if err != nil {
		return err
	}
	defer logger.Sync()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		interval := time.Duration(cfg.Metrics.ReportingMs) * time.Millisecond
		m = metrics.NewWithPrometheus(logger, cfg.Metrics.Namespace, interval, cfg.Metrics.HTTPPort)
		defer m.Close()
	} else {
		m = metrics.NewNop()
	}

	dir, err := directory.OpenMmap(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("opening directory: %w", err)
	}
	defer dir.Close()

	// segtest's reference Builder/Reader stand in for a real on-disk
	// codec, which is out of scope for this engine (see the segment
	// package doc comment); a production deployment supplies its own.
	store := segtest.NewStore()

	idxCfg := cfg.IndexConfigDefaults()
	idxCfg.Directory = dir
	idxCfg.BuilderFactory = store.BuilderFactory()
	idxCfg.ReaderFactory = store.ReaderFactory()
	idxCfg.MergeFunc = store.MergeFunc()
	idxCfg.Logger = logger
	idxCfg.Metrics = m

	w, err := index.Open(&idxCfg)
	if err != nil {
		return fmt.Errorf("opening writer: %w", err)
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}

	n, err := indexStdin(w, os.Stdin, logger)
	if err != nil {
		return err
	}

	if _, err := w.Commit("ftsindex"); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	logger.Info("indexing complete", zap.Int("documents", n))
	return nil
}

func indexStdin(w *index.Writer, r io.Reader, logger *zap.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var jd jsonDoc
		if err := json.Unmarshal(line, &jd); err != nil {
			logger.Warn("skipping malformed line", zap.Error(err))
			continue
		}
		terms := make([]segment.Term, 0, len(jd.Terms))
		for _, t := range jd.Terms {
			terms = append(terms, segment.Term(t))
		}
		if _, err := w.AddDocument(segtest.Doc{Terms: terms}); err != nil {
			return n, fmt.Errorf("adding document: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading stdin: %w", err)
	}
	return n, nil
}
