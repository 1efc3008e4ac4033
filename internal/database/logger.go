package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger sends gorm's statement log to zerolog. Statements are logged at
// debug level, slow ones at warn.
type GormLogger struct {
	log  zerolog.Logger
	slow time.Duration
}

func NewGormLogger(log zerolog.Logger, slow time.Duration) *GormLogger {
	return &GormLogger{log: log.With().Str("component", "gorm").Logger(), slow: slow}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	switch level {
	case gormlogger.Silent:
		out.log = l.log.Level(zerolog.Disabled)
	case gormlogger.Error:
		out.log = l.log.Level(zerolog.ErrorLevel)
	case gormlogger.Warn:
		out.log = l.log.Level(zerolog.WarnLevel)
	}
	return &out
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Info().Msgf(msg, args...)
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Warn().Msgf(msg, args...)
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Error().Msgf(msg, args...)
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case l.slow > 0 && elapsed > l.slow:
		sql, rows := fc()
		l.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case l.log.GetLevel() <= zerolog.DebugLevel:
		sql, rows := fc()
		l.log.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
