// Package logger builds the zerolog loggers used by the command line.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New returns a logger writing to w, or stderr when w is nil. Unknown levels
// fall back to info and the fallback is logged.
func New(levelStr, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	out := w
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	level, err := zerolog.ParseLevel(levelStr)
	invalid := err != nil || levelStr == ""
	if invalid {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if invalid && levelStr != "" {
		log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
	}
	return log
}
