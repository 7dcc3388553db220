package common

import (
	"io"
	"strings"

	"github.com/phuslu/log"
)

// NewLogger creates a console logger writing to w at the given level. Level names are the ones phuslu/log
// understands (debug, info, warn, error); an unknown name falls back to info.
func NewLogger(level string, w io.Writer) *log.Logger {
	return &log.Logger{
		Level:      log.ParseLevel(strings.ToLower(level)),
		TimeFormat: "15:04:05.000",
		Writer: &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    false,
			EndWithMessage: true,
		},
	}
}

// DiscardLogger returns a logger that drops everything. Components use it when no logger is injected.
func DiscardLogger() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: log.IOWriter{Writer: io.Discard},
	}
}

// LoggerOrDiscard returns l if it is not nil, a discarding logger otherwise.
func LoggerOrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return DiscardLogger()
	}
	return l
}
