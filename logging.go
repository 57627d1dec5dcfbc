package reactor

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// defaultLogger is a quiet stderr logger used when an Engine is built
// without an explicit WithLogger option, mirroring the teacher's habit of
// always having a usable zero-value collaborator rather than a nil check
// at every call site.
var (
	defaultLoggerOnce sync.Once
	defaultLoggerVal  zerolog.Logger
)

func defaultLogger() zerolog.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerVal = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger().Level(zerolog.WarnLevel)
	})
	return defaultLoggerVal
}
