// Package ftslog builds the zap.Logger every other package accepts
// through its Config, grounded on the teacher's server/logger.go
// (SetupLogging and friends), generalized from a multi-subsystem server
// log to this engine's own: console output plus an optional rotating
// file sink.
package ftslog

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the JSON encoder's key names.
type Format int8

const (
	JSONFormat Format = iota
	StackdriverFormat
)

// Config configures Setup. File is optional; when empty, only the
// console logger is built.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // "", "json", or "stackdriver"

	File       string
	Stdout     bool // when File is set, also mirror to stdout
	Rotation   bool
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	LocalTime  bool
	Compress   bool
}

// Setup builds the engine's logger from cfg. It returns the logger
// callers should pass into index.Config.Logger; the standard library's
// log package output is redirected into that same logger.
func Setup(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	console := newJSONLogger(os.Stdout, level, format)

	var file *zap.Logger
	if cfg.File != "" {
		if cfg.Rotation {
			file, err = newRotatingFileLogger(cfg, level, format)
		} else {
			file, err = newFileLogger(cfg.File, level, format)
		}
		if err != nil {
			return nil, err
		}
	}

	var root *zap.Logger
	switch {
	case file == nil:
		root = console
	case cfg.Stdout:
		root = newMultiLogger(console, file)
	default:
		root = file
	}

	redirectStdLog(root)
	return root, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("ftslog: invalid level %q, must be debug, info, warn, or error", level)
	}
}

func parseFormat(format string) (Format, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSONFormat, nil
	case "stackdriver":
		return StackdriverFormat, nil
	default:
		return 0, fmt.Errorf("ftslog: invalid format %q, must be '', 'json', or 'stackdriver'", format)
	}
}

func newFileLogger(fileName string, level zapcore.Level, format Format) (*zap.Logger, error) {
	f, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ftslog: opening log file: %w", err)
	}
	return newJSONLogger(f, level, format), nil
}

func newRotatingFileLogger(cfg Config, level zapcore.Level, format Format) (*zap.Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("ftslog: rotation requested but File is empty")
	}
	logDir := filepath.Dir(cfg.File)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("ftslog: creating log directory: %w", err)
		}
	}

	// lumberjack.Logger is already safe for concurrent use.
	writeSyncer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  cfg.LocalTime,
		Compress:   cfg.Compress,
	})
	core := zapcore.NewCore(jsonEncoder(format), writeSyncer, level)
	return zap.New(core, zap.AddCaller()), nil
}

func newMultiLogger(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, l := range loggers {
		cores = append(cores, l.Core())
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func newJSONLogger(output *os.File, level zapcore.Level, format Format) *zap.Logger {
	core := zapcore.NewCore(jsonEncoder(format), zapcore.Lock(output), level)
	return zap.New(core, zap.AddCaller())
}

func jsonEncoder(format Format) zapcore.Encoder {
	if format == StackdriverFormat {
		return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    stackdriverLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		})
	}
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}

func stackdriverLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString("DEFAULT")
	}
}

type redirectWriter struct {
	logger *zap.Logger
}

func (r *redirectWriter) Write(p []byte) (int, error) {
	s := string(bytes.TrimSpace(p))
	r.logger.Info(s)
	return len(p), nil
}

// redirectStdLog sends anything written through the standard library's
// log package into logger instead, so a third-party dependency that
// only knows about log.Logger still ends up in the structured stream.
func redirectStdLog(logger *zap.Logger) {
	log.SetFlags(0)
	log.SetPrefix("")
	skip := logger.WithOptions(zap.AddCallerSkip(3))
	log.SetOutput(&redirectWriter{skip})
}
