// Package obslog configures the process-wide structured logger and
// hands out per-component child loggers. Every log line is a single
// newline-delimited JSON object with fields ts, level, logger, msg,
// pid, and whatever the call site attaches.
package obslog

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a per-component structured logger. Its method set is
// zerolog's own event-builder chain (Debug/Info/Warn/Error, then
// typed field setters, then Msg).
type Logger = zerolog.Logger

var (
	once sync.Once
	base zerolog.Logger
)

// Configure sets the process-wide minimum log level. Call once during
// startup, before any Get. levelName is one of DEBUG, INFO, WARNING,
// ERROR (case-insensitive); unrecognized values fall back to INFO.
func Configure(levelName string) {
	once.Do(func() {
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05Z"
		zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
		zerolog.TimestampFieldName = "ts"
		zerolog.MessageFieldName = "msg"
		zerolog.LevelFieldName = "level"
		zerolog.ErrorFieldName = "exc"

		base = zerolog.New(os.Stdout).
			Level(parseLevel(levelName)).
			With().
			Timestamp().
			Int("pid", os.Getpid()).
			Logger()
	})
}

// Get returns a child logger tagged with the given component name. If
// Configure was never called, it configures at INFO level first.
func Get(name string) Logger {
	Configure("INFO")
	return base.With().Str("logger", name).Logger()
}

func parseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Since returns the milliseconds elapsed since start, for elapsed-time
// log fields.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
