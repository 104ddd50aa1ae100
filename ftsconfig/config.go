// Package ftsconfig is the engine's on-disk configuration: a YAML file
// overridable by command-line flags, grounded on the teacher's
// server/config.go ParseArgs/NewConfig pattern (load defaults, overlay a
// YAML file if one is given, then overlay flags), generalized from
// nakama's whole-server config surface to just what an ftsindex process
// needs to open a Writer.
package ftsconfig

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lumenidx/ftsengine/ftslog"
	"github.com/lumenidx/ftsengine/index"
)

// Config is the root of the YAML file an ftsindex process reads.
type Config struct {
	DataDir string `yaml:"data_dir"`

	NumThreads        int    `yaml:"num_threads"`
	HeapSizePerThread uint64 `yaml:"heap_size_per_thread"`
	ChannelCapacity   int    `yaml:"channel_capacity"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig mirrors ftslog.Config's YAML-facing fields.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	Stdout     bool   `yaml:"stdout"`
	Rotation   bool   `yaml:"rotation"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls whether and how a Prometheus exposition server
// runs alongside the Writer.
type MetricsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Namespace         string `yaml:"namespace"`
	HTTPPort          int    `yaml:"http_port"`
	ReportingMs       int    `yaml:"reporting_ms"`
}

// Default returns the engine's out-of-the-box settings, the way
// NewConfig seeds nakama's server config before any file or flag is
// consulted.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		DataDir:           cwd,
		NumThreads:        2,
		HeapSizePerThread: 64 * 1024 * 1024,
		ChannelCapacity:   10000,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Stdout: true,
		},
		Metrics: MetricsConfig{
			Namespace:   "ftsengine",
			HTTPPort:    9090,
			ReportingMs: 1000,
		},
	}
}

// ParseArgs loads Default(), overlays a YAML file named by --config (if
// present among args), then overlays any flags also set on the command
// line — the same three-tier precedence server/config.go's ParseArgs
// established for nakama, rebuilt on pflag instead of the teacher's
// hand-rolled reflection-based flag mapper.
func ParseArgs(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("ftsindex", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	dataDir := fs.String("data_dir", cfg.DataDir, "root directory for index data")
	numThreads := fs.Int("num_threads", cfg.NumThreads, "number of indexing worker threads")
	heapSize := fs.Uint64("heap_size_per_thread", cfg.HeapSizePerThread, "per-thread memory budget in bytes")
	logLevel := fs.String("log.level", cfg.Log.Level, "log level: debug, info, warn, error")
	metricsPort := fs.Int("metrics.http_port", cfg.Metrics.HTTPPort, "Prometheus /metrics port, 0 disables the listener")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("ftsconfig: parsing flags: %w", err)
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("ftsconfig: reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ftsconfig: parsing config file: %w", err)
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "data_dir":
			cfg.DataDir = *dataDir
		case "num_threads":
			cfg.NumThreads = *numThreads
		case "heap_size_per_thread":
			cfg.HeapSizePerThread = *heapSize
		case "log.level":
			cfg.Log.Level = *logLevel
		case "metrics.http_port":
			cfg.Metrics.HTTPPort = *metricsPort
		}
	})

	return cfg, nil
}

// LoggerConfig adapts this config's Log section into ftslog.Config.
func (c *Config) LoggerConfig() ftslog.Config {
	return ftslog.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		Stdout:     c.Log.Stdout,
		Rotation:   c.Log.Rotation,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
	}
}

// IndexConfigDefaults fills in the collaborator-free fields of
// index.Config (heap/thread/channel sizing) that this file controls;
// the caller must still set Directory, BuilderFactory, ReaderFactory,
// and MergeFunc themselves, since those are external collaborators
// ftsconfig has no business constructing.
func (c *Config) IndexConfigDefaults() index.Config {
	return index.Config{
		HeapSizePerThread: c.HeapSizePerThread,
		NumThreads:        c.NumThreads,
		ChannelCapacity:   c.ChannelCapacity,
	}
}
