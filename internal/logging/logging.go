// Package logging provides structured logging built on log/slog, with
// a JSON handler on stdout and an optional JSON handler on a
// lumberjack-rotated file, adapted from birdnet-go's internal/logging
// package. There is no plain-text handler.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	structuredLogger *slog.Logger
	loggerMu         sync.RWMutex
	currentLevel     = new(slog.LevelVar)
	initOnce         sync.Once
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Rotation selects the retention settings NewFileLogger gives
// lumberjack. lumberjack rotates on file size in every case; daily and
// weekly only set how many days and backups are kept.
type Rotation string

const (
	RotationSize   Rotation = "size"
	RotationDaily  Rotation = "daily"
	RotationWeekly Rotation = "weekly"
)

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global structured (JSON-to-stdout) logger at the
// given level and installs it as slog's default. Safe to call more
// than once; only the first call takes effect.
func Init(level slog.Level) {
	initOnce.Do(func() {
		currentLevel.Set(level)
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: replaceAttr,
		})
		loggerMu.Lock()
		structuredLogger = slog.New(handler)
		loggerMu.Unlock()
		slog.SetDefault(structuredLogger)
	})
}

// SetLevel adjusts the level of every logger created through this
// package, including ones already handed out by ForComponent.
func SetLevel(level slog.Level) { currentLevel.Set(level) }

// Level returns the shared LevelVar backing the package's loggers, so
// a replacement base logger (e.g. one built by NewFileLogger) can be
// kept in sync with SetLevel.
func Level() *slog.LevelVar { return currentLevel }

// SetBase replaces the logger ForComponent derives its output from,
// letting a caller swap the destination (e.g. to a rotated log file)
// after Init has already installed the stdout default.
func SetBase(logger *slog.Logger) {
	loggerMu.Lock()
	structuredLogger = logger
	loggerMu.Unlock()
	slog.SetDefault(logger)
}

// ForComponent returns a logger tagged with a "component" attribute,
// the unit every dispatcher package logs through.
func ForComponent(name string) *slog.Logger {
	loggerMu.RLock()
	base := structuredLogger
	loggerMu.RUnlock()
	if base == nil {
		Init(slog.LevelInfo)
		loggerMu.RLock()
		base = structuredLogger
		loggerMu.RUnlock()
	}
	return base.With("component", name)
}

// Fatal logs at the custom Fatal level using the default logger, then
// exits the process.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom Trace level using the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// FileLoggerConfig configures NewFileLogger's rotation behavior.
type FileLoggerConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Rotation   Rotation
	Compress   bool
}

// NewFileLogger builds a JSON slog.Logger writing to filePath through
// lumberjack, mirroring birdnet-go's NewFileLogger. Returns the logger
// and a close func for the rotation writer.
func NewFileLogger(filePath, component string, levelVar *slog.LevelVar, cfg FileLoggerConfig) (*slog.Logger, func() error, error) {
	dir := filepath.Dir(filePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
	}

	maxSize, maxBackups, maxAge := cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays
	if maxSize <= 0 {
		maxSize = 100
	}
	switch cfg.Rotation {
	case RotationDaily:
		maxAge, maxBackups = 1, 30
	case RotationWeekly:
		maxAge, maxBackups = 7, 4
	default:
		if maxBackups <= 0 {
			maxBackups = 3
		}
		if maxAge <= 0 {
			maxAge = 28
		}
	}

	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   cfg.Compress,
	}

	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceAttr,
	})

	logger := slog.New(handler).With("component", component)
	return logger, lj.Close, nil
}
