package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm/logger"
)

// slowQueryThreshold is the duration above which a query is logged at
// Warn even when GORM's own level is Warn, mirroring birdnet-go's
// NewGormLogger(DefaultSlowQueryThreshold, ...) wiring
// (internal/datastore/manage.go).
const slowQueryThreshold = 200 * time.Millisecond

// gormLogger adapts *slog.Logger to gorm's logger.Interface, the same
// shape as birdnet-go's custom GORM logger, without the optional
// metrics hook (this system's metrics live in internal/metrics and are
// incremented explicitly at the call sites that matter, per spec.md
// §4.4/§4.6's "scan counters and duration are exported").
type gormLogger struct {
	log           *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log *slog.Logger, level logger.LogLevel) *gormLogger {
	return &gormLogger{log: log, level: level, slowThreshold: slowQueryThreshold}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.Info(msg, "args", args)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.Warn(msg, "args", args)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.Error(msg, "args", args)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, logger.ErrRecordNotFound):
		l.log.Error("gorm query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > l.slowThreshold && l.slowThreshold != 0 && l.level >= logger.Warn:
		l.log.Warn("slow gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= logger.Info:
		l.log.Debug("gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
