package logging

import (
	"io"
	"os"
	"time"

	"pragrisk/internal/config"

	"github.com/rs/zerolog"
)

// New builds the root logger. Output goes to stdout unless w is given.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", "pragrisk").
		Logger().
		Level(level)
}
